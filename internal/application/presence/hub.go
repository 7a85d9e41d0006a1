package presence

import (
	"sort"
	"strings"
	"sync"
)

// Message types sent to room members
const (
	TypePresenceUpdate    = "presenceUpdate"
	TypeWorkflowCreated   = "workflowCreated"
	TypeWorkflowAction    = "workflowAction"
	TypeWorkflowCancelled = "workflowCancelled"
	TypeStepOverdue       = "stepOverdue"
)

// DocumentRoom returns the room of a document
func DocumentRoom(documentID string) string {
	return "document:" + documentID
}

// UserRoom returns the private room of an actor
func UserRoom(actorID string) string {
	return "user:" + actorID
}

// IsUserRoom reports whether roomID is a private actor room
func IsUserRoom(roomID string) bool {
	return strings.HasPrefix(roomID, "user:")
}

// Message is what a room member receives
type Message struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"roomId"`
	Payload interface{} `json:"payload,omitempty"`
}

// Member identifies one connection in a room
type Member struct {
	ConnectionID string `json:"-"`
	ActorID      string `json:"actorId"`
	DisplayName  string `json:"displayName,omitempty"`
}

// PresencePayload is the payload of a presenceUpdate message
type PresencePayload struct {
	Members []Member `json:"members"`
}

// Handler receives room messages. It must not block.
type Handler func(msg Message)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type subscriber struct {
	member  Member
	handler Handler
}

// Hub holds ephemeral room membership in process memory
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*subscriber
	logger Logger
}

// NewHub creates an empty hub
func NewHub(logger Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*subscriber),
		logger: logger,
	}
}

// Subscription is one membership; Leave evicts it
type Subscription struct {
	hub    *Hub
	roomID string
	connID string
	once   sync.Once
}

// RoomID returns the subscribed room
func (s *Subscription) RoomID() string {
	return s.roomID
}

// Leave removes the membership and announces the new member list
func (s *Subscription) Leave() {
	s.once.Do(func() {
		s.hub.leave(s.roomID, s.connID)
	})
}

// Subscribe joins member to roomID. Joining twice from the same connection
// replaces the handler.
func (h *Hub) Subscribe(roomID string, member Member, handler Handler) *Subscription {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*subscriber)
		h.rooms[roomID] = room
	}
	room[member.ConnectionID] = &subscriber{member: member, handler: handler}
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Info("Room joined", "room_id", roomID, "actor_id", member.ActorID)
	}
	h.announce(roomID)

	return &Subscription{hub: h, roomID: roomID, connID: member.ConnectionID}
}

func (h *Hub) leave(roomID, connID string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	sub, ok := room[connID]
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	if ok && h.logger != nil {
		h.logger.Info("Room left", "room_id", roomID, "actor_id", sub.member.ActorID)
	}
	h.announce(roomID)
}

// Publish delivers message to every member of roomID and returns the
// number of recipients. A Message is sent as is; anything else is wrapped
// as the payload of a message without type.
func (h *Hub) Publish(roomID string, message interface{}) int {
	msg, ok := message.(Message)
	if !ok {
		msg = Message{Payload: message}
	}
	msg.RoomID = roomID

	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.rooms[roomID]))
	for _, sub := range h.rooms[roomID] {
		handlers = append(handlers, sub.handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(msg)
	}
	return len(handlers)
}

// Members returns the distinct actors present in roomID sorted by actor id
func (h *Hub) Members(roomID string) []Member {
	h.mu.RLock()
	seen := make(map[string]Member, len(h.rooms[roomID]))
	for _, sub := range h.rooms[roomID] {
		seen[sub.member.ActorID] = sub.member
	}
	h.mu.RUnlock()

	members := make([]Member, 0, len(seen))
	for _, m := range seen {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ActorID < members[j].ActorID })
	return members
}

// RoomCount returns the number of non-empty rooms
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// announce sends the member list of a shared room to its members
func (h *Hub) announce(roomID string) {
	if IsUserRoom(roomID) {
		return
	}
	h.Publish(roomID, Message{
		Type:    TypePresenceUpdate,
		Payload: PresencePayload{Members: h.Members(roomID)},
	})
}
