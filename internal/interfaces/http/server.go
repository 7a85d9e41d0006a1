// Package http exposes the approval engine over a JSON REST API.
// Handlers only translate requests; every rule lives in the application layer.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/application/service"
	"github.com/garyjia/jd-approval/internal/application/workflow"
	"github.com/garyjia/jd-approval/pkg/auth"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// TokenVerifier turns a bearer token into the caller's identity
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins feeds the CORS middleware; empty allows any origin
	AllowedOrigins []string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Dependencies are the application services the server routes to
type Dependencies struct {
	Engine    workflow.Engine
	Documents port.DocumentRepository
	History   service.HistoryService
	Tokens    TokenVerifier
	// Realtime is mounted at GET /ws when set
	Realtime http.Handler
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(accessLog(s.logger))

	corsConfig := cors.DefaultConfig()
	if len(s.config.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	s.router.Use(cors.New(corsConfig))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps.Engine, s.deps.Documents, s.deps.History, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Realtime != nil {
		s.router.GET("/ws", gin.WrapH(s.deps.Realtime))
	}

	api := s.router.Group("/api", requireAuth(s.deps.Tokens, s.logger))
	{
		workflows := api.Group("/workflows")
		workflows.POST("", h.CreateWorkflow)
		workflows.GET("/pending", h.ListPending)
		workflows.GET("/document/:documentId", h.GetDocumentWorkflow)
		workflows.GET("/:id", h.GetWorkflow)
		workflows.POST("/:id/approve", h.Approve)
		workflows.POST("/:id/reject", h.Reject)
		workflows.POST("/:id/request-changes", h.RequestChanges)
		workflows.POST("/:id/comment", h.Comment)
		workflows.POST("/:id/cancel", h.Cancel)
		workflows.GET("/:id/history/export", h.ExportHistory)

		api.POST("/documents", h.CreateDocument)
		api.GET("/documents/:id", h.GetDocument)
	}
}

// Start starts the HTTP server and blocks until ctx is done or serving fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
