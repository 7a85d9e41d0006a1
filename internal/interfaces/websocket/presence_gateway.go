// Package websocket serves the realtime presence channel of the approval UI.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/application/presence"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/pkg/apperrors"
	"github.com/garyjia/jd-approval/pkg/auth"
)

// Client message types
const (
	TypeJoinRoom  = "joinRoom"
	TypeLeaveRoom = "leaveRoom"
	TypeError     = "error"
)

// TokenVerifier turns an access token into the caller's identity
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// DocumentLookup resolves which organization owns a document room
type DocumentLookup interface {
	GetDocumentOrganization(ctx context.Context, documentID string) (string, error)
}

// GatewayConfig holds presence gateway configuration
type GatewayConfig struct {
	// SendQueueSize bounds each connection's outbound queue; overflow is dropped
	SendQueueSize   int
	WriteTimeout    time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	// AllowedOrigins restricts the Origin header; empty allows any origin
	AllowedOrigins []string
}

// DefaultGatewayConfig returns default gateway configuration
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		SendQueueSize:   64,
		WriteTimeout:    10 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageBytes: 4096,
	}
}

// clientMessage is what a browser sends
type clientMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// Gateway upgrades authenticated requests and bridges sockets to the hub
type Gateway struct {
	config     GatewayConfig
	hub        *presence.Hub
	tokens     TokenVerifier
	documents  DocumentLookup
	identities port.IdentityProvider
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
	dropped atomic.Int64
}

// NewGateway creates a presence gateway. Document rooms are refused when
// documents is nil. identities is optional and only used to show display names.
func NewGateway(config GatewayConfig, hub *presence.Hub, tokens TokenVerifier, documents DocumentLookup, identities port.IdentityProvider, logger *zap.Logger) *Gateway {
	def := DefaultGatewayConfig()
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = def.SendQueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.PongWait <= 0 {
		config.PongWait = def.PongWait
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = def.MaxMessageBytes
	}

	g := &Gateway{
		config:     config,
		hub:        hub,
		tokens:     tokens,
		documents:  documents,
		identities: identities,
		logger:     logger,
		clients:    make(map[string]*client),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// ServeHTTP handles GET /ws?token=<jwt>
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	principal, err := g.tokens.Verify(token)
	if err != nil {
		g.logger.Info("Rejected websocket token", zap.Error(err))
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		g.logger.Info("Websocket upgrade failed", zap.String("actor_id", principal.ActorID), zap.Error(err))
		return
	}

	c := &client{
		gateway:   g,
		conn:      conn,
		principal: principal,
		member: presence.Member{
			ConnectionID: uuid.NewString(),
			ActorID:      principal.ActorID,
			DisplayName:  g.displayName(r.Context(), principal.ActorID),
		},
		send: make(chan []byte, g.config.SendQueueSize),
		done: make(chan struct{}),
		subs: make(map[string]*presence.Subscription),
	}

	g.mu.Lock()
	g.clients[c.member.ConnectionID] = c
	g.mu.Unlock()

	g.logger.Info("Websocket connected",
		zap.String("connection_id", c.member.ConnectionID),
		zap.String("actor_id", principal.ActorID))

	c.join(presence.UserRoom(principal.ActorID))

	go c.writeLoop()
	c.readLoop()
}

// ConnectionCount returns the number of open sockets
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Dropped returns how many outbound messages were discarded on full queues
func (g *Gateway) Dropped() int64 {
	return g.dropped.Load()
}

// Close disconnects every socket
func (g *Gateway) Close() error {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	g.logger.Info("Presence gateway closed", zap.Int("connections", len(clients)))
	return nil
}

func (g *Gateway) remove(c *client) {
	g.mu.Lock()
	delete(g.clients, c.member.ConnectionID)
	g.mu.Unlock()
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (g *Gateway) displayName(ctx context.Context, actorID string) string {
	if g.identities == nil {
		return actorID
	}
	identity, err := g.identities.Resolve(ctx, actorID)
	if err != nil || identity.DisplayName == "" {
		return actorID
	}
	return identity.DisplayName
}

// client is one websocket connection
type client struct {
	gateway   *Gateway
	conn      *websocket.Conn
	principal auth.Principal
	member    presence.Member

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// subs is only touched by the read loop
	subs map[string]*presence.Subscription
}

func (c *client) join(roomID string) {
	if _, ok := c.subs[roomID]; ok {
		return
	}
	c.subs[roomID] = c.gateway.hub.Subscribe(roomID, c.member, c.enqueue)
}

func (c *client) leave(roomID string) {
	if sub, ok := c.subs[roomID]; ok {
		sub.Leave()
		delete(c.subs, roomID)
	}
}

// enqueue never blocks: a full queue drops the message
func (c *client) enqueue(msg presence.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.gateway.logger.Error("Failed to encode room message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.gateway.dropped.Add(1)
		c.gateway.logger.Info("Send queue full, message dropped",
			zap.String("connection_id", c.member.ConnectionID),
			zap.String("type", msg.Type))
	}
}

func (c *client) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(c.gateway.config.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.gateway.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.gateway.config.PongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gateway.logger.Info("Websocket read error",
					zap.String("connection_id", c.member.ConnectionID),
					zap.Error(err))
			}
			return
		}

		if reason := c.handle(msg); reason != "" {
			c.enqueue(presence.Message{
				Type:    TypeError,
				RoomID:  msg.RoomID,
				Payload: map[string]string{"message": reason},
			})
		}
	}
}

// handle applies a client message and returns a rejection reason, if any
func (c *client) handle(msg clientMessage) string {
	roomID := strings.TrimSpace(msg.RoomID)
	switch msg.Type {
	case TypeJoinRoom:
		if !c.mayJoin(roomID) {
			return "room not allowed"
		}
		c.join(roomID)
	case TypeLeaveRoom:
		if roomID == presence.UserRoom(c.member.ActorID) {
			return "cannot leave own user room"
		}
		c.leave(roomID)
	default:
		return "unknown message type"
	}
	return ""
}

// mayJoin allows the caller's own user room and rooms of documents in the
// caller's organization. SUPER_ADMIN may join any existing document room.
func (c *client) mayJoin(roomID string) bool {
	documentID, ok := strings.CutPrefix(roomID, "document:")
	if !ok {
		return roomID == presence.UserRoom(c.member.ActorID)
	}
	if documentID == "" || c.gateway.documents == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.gateway.config.WriteTimeout)
	defer cancel()
	orgID, err := c.gateway.documents.GetDocumentOrganization(ctx, documentID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			c.gateway.logger.Warn("Document lookup failed",
				zap.String("document_id", documentID),
				zap.Error(err))
		}
		return false
	}
	return orgID == c.principal.OrganizationID || c.principal.Role == string(entity.RoleSuperAdmin)
}

func (c *client) writeLoop() {
	pingPeriod := c.gateway.config.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gateway.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gateway.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// close evicts every membership exactly once
func (c *client) close() {
	c.closeOnce.Do(func() {
		for roomID := range c.subs {
			c.leave(roomID)
		}
		close(c.done)
		c.conn.Close()
		c.gateway.remove(c)
		c.gateway.logger.Info("Websocket disconnected",
			zap.String("connection_id", c.member.ConnectionID),
			zap.String("actor_id", c.member.ActorID))
	})
}
