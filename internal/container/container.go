package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/dispatcher"
	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/application/presence"
	"github.com/garyjia/jd-approval/internal/application/service"
	"github.com/garyjia/jd-approval/internal/application/workflow"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/jd-approval/internal/infrastructure/worker"
	httpapi "github.com/garyjia/jd-approval/internal/interfaces/http"
	"github.com/garyjia/jd-approval/internal/interfaces/websocket"
	"github.com/garyjia/jd-approval/pkg/auth"
	"github.com/garyjia/jd-approval/pkg/database"
	"github.com/garyjia/jd-approval/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// Initialization is ordered and teardown runs in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	tokens    *auth.TokenManager
	messaging *MessagingBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	// Interfaces
	realtime *RealtimeBundle
	server   *httpapi.Server

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Workflow     port.WorkflowRepository
	Document     port.DocumentRepository
	Actor        port.ActorRepository
	Notification port.NotificationRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Notification service.NotificationService
	Reminder     service.ReminderService
	History      service.HistoryService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and starts the background workers.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Token manager and messaging
// 3. Dispatcher, workflow engine and services
// 4. Presence hub, gateway and event subscriptions
// 5. Workers
// 6. HTTP server (not listening until Server().Start)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		init func() error
	}{
		{"database", c.initDatabase},
		{"external clients", c.initExternalClients},
		{"application", c.initApplication},
		{"realtime", c.initRealtime},
		{"workers", c.initWorkers},
		{"server", c.initServer},
	}
	for _, step := range steps {
		if err := step.init(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized so far
func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.realtime != nil {
		if err := c.realtime.Gateway.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gateway: %w", err))
		}
	}

	if c.workers != nil && c.workers.IsRunning() {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Let in-flight notifications finish before the database goes away
	if c.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dispatcher.Close(ctx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.db = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		if err := c.db.Ping(); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	switch {
	case c.workers == nil:
		set("workers", false, "not initialized")
	case c.workers.Count() == 0:
		set("workers", true, "no workers registered")
	default:
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.Count()))
	}

	if c.realtime != nil {
		set("presence", true, fmt.Sprintf("connections: %d, rooms: %d",
			c.realtime.Gateway.ConnectionCount(), c.realtime.Hub.RoomCount()))
	} else {
		set("presence", false, "not initialized")
	}

	set("dispatcher", c.dispatcher != nil, "")

	return status
}

// initDatabase opens the database and creates all repositories.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.db = dbBundle.DB
	c.txManager = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db.DB, c.logger)
	if err != nil {
		return err
	}

	c.repositories = repos
	return nil
}

// initExternalClients creates the token manager and the message sender.
func (c *Container) initExternalClients() error {
	tokens, err := auth.NewTokenManager(c.config.Auth.JWTSecret, c.config.Auth.Issuer, c.config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	c.tokens = tokens

	c.messaging = ProvideMessaging(&c.config.Lark, c.logger.Named("lark"))
	return nil
}

// initApplication creates the dispatcher, the engine and the services.
func (c *Container) initApplication() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Dispatcher: c.dispatcher,
		Config:     &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Dispatcher: c.dispatcher,
		Messaging:  c.messaging,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	return nil
}

// initRealtime creates the presence gateway and subscribes event handlers.
func (c *Container) initRealtime() error {
	realtime, err := ProvideRealtime(&c.config.Presence, c.tokens, c.repositories.Document, c.repositories.Actor, c.logger)
	if err != nil {
		return err
	}
	c.realtime = realtime

	RegisterEventHandlers(c.dispatcher, c.services, c.realtime)
	return nil
}

// initWorkers creates and starts all background workers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&c.config.Reminder, c.services.Reminder, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// initServer builds the HTTP server.
func (c *Container) initServer() error {
	c.server = httpapi.NewServer(c.config.Server, httpapi.Dependencies{
		Engine:    c.engine,
		Documents: c.repositories.Document,
		History:   c.services.History,
		Tokens:    c.tokens,
		Realtime:  c.realtime.Gateway,
	}, utils.NewSugarLogger(c.logger.Named("http")))
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.txManager
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Engine returns the workflow engine.
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Tokens returns the access token manager.
func (c *Container) Tokens() *auth.TokenManager {
	return c.tokens
}

// Hub returns the presence hub.
func (c *Container) Hub() *presence.Hub {
	if c.realtime == nil {
		return nil
	}
	return c.realtime.Hub
}

// Gateway returns the websocket presence gateway.
func (c *Container) Gateway() *websocket.Gateway {
	if c.realtime == nil {
		return nil
	}
	return c.realtime.Gateway
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container configuration.
func (c *Container) Config() *Config {
	return c.config
}
