package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/presence"
	"github.com/garyjia/jd-approval/pkg/apperrors"
	"github.com/garyjia/jd-approval/pkg/auth"
)

// documentOrgs maps document IDs to their organization
type documentOrgs map[string]string

func (d documentOrgs) GetDocumentOrganization(ctx context.Context, documentID string) (string, error) {
	org, ok := d[documentID]
	if !ok {
		return "", apperrors.NewNotFoundError("document", documentID)
	}
	return org, nil
}

type wireMessage struct {
	Type    string                 `json:"type"`
	RoomID  string                 `json:"roomId"`
	Payload map[string]interface{} `json:"payload"`
}

type gatewayFixture struct {
	hub     *presence.Hub
	gateway *Gateway
	server  *httptest.Server
	tokens  *auth.TokenManager
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	tokens, err := auth.NewTokenManager("test-secret", "", time.Hour)
	require.NoError(t, err)

	hub := presence.NewHub(nil)
	gateway := NewGateway(DefaultGatewayConfig(), hub, tokens,
		documentOrgs{"doc-1": "org-1", "doc-2": "org-2"}, nil, zap.NewNop())
	server := httptest.NewServer(gateway)
	t.Cleanup(func() {
		gateway.Close()
		server.Close()
	})

	return &gatewayFixture{hub: hub, gateway: gateway, server: server, tokens: tokens}
}

func (f *gatewayFixture) dial(t *testing.T, actorID string) *websocket.Conn {
	t.Helper()
	return f.dialAs(t, auth.Principal{ActorID: actorID, Role: "HR_MANAGER", OrganizationID: "org-1"})
}

func (f *gatewayFixture) dialAs(t *testing.T, principal auth.Principal) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.Issue(principal)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages of other types
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wireMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		if msg := read(t, conn); msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message received", msgType)
	return wireMessage{}
}

func memberIDs(msg wireMessage) []string {
	raw, _ := msg.Payload["members"].([]interface{})
	ids := make([]string, 0, len(raw))
	for _, m := range raw {
		if member, ok := m.(map[string]interface{}); ok {
			ids = append(ids, member["actorId"].(string))
		}
	}
	return ids
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayPresenceLifecycle(t *testing.T) {
	f := newGatewayFixture(t)

	alice := f.dial(t, "alice")
	require.NoError(t, alice.WriteJSON(clientMessage{Type: TypeJoinRoom, RoomID: "document:doc-1"}))
	update := readUntil(t, alice, presence.TypePresenceUpdate)
	assert.Equal(t, []string{"alice"}, memberIDs(update))

	bob := f.dial(t, "bob")
	require.NoError(t, bob.WriteJSON(clientMessage{Type: TypeJoinRoom, RoomID: "document:doc-1"}))
	assert.Equal(t, []string{"alice", "bob"}, memberIDs(readUntil(t, bob, presence.TypePresenceUpdate)))
	assert.Equal(t, []string{"alice", "bob"}, memberIDs(readUntil(t, alice, presence.TypePresenceUpdate)))

	n := f.hub.Publish(presence.DocumentRoom("doc-1"), presence.Message{
		Type:    presence.TypeWorkflowAction,
		Payload: map[string]string{"action": "APPROVE"},
	})
	assert.Equal(t, 2, n)
	got := readUntil(t, alice, presence.TypeWorkflowAction)
	assert.Equal(t, "document:doc-1", got.RoomID)
	assert.Equal(t, "APPROVE", got.Payload["action"])

	// disconnect evicts bob from every room
	bob.Close()
	assert.Equal(t, []string{"alice"}, memberIDs(readUntil(t, alice, presence.TypePresenceUpdate)))
}

func TestGatewayAutoJoinsUserRoom(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dial(t, "alice")

	require.Eventually(t, func() bool {
		return len(f.hub.Members(presence.UserRoom("alice"))) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.Publish(presence.UserRoom("alice"), presence.Message{Type: presence.TypeStepOverdue})
	msg := readUntil(t, alice, presence.TypeStepOverdue)
	assert.Equal(t, "user:alice", msg.RoomID)
}

func TestGatewayRejectsForeignRooms(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dial(t, "alice")

	require.NoError(t, alice.WriteJSON(clientMessage{Type: TypeJoinRoom, RoomID: "user:bob"}))
	msg := readUntil(t, alice, TypeError)
	assert.Equal(t, "room not allowed", msg.Payload["message"])

	require.NoError(t, alice.WriteJSON(clientMessage{Type: "dance"}))
	msg = readUntil(t, alice, TypeError)
	assert.Equal(t, "unknown message type", msg.Payload["message"])

	assert.Empty(t, f.hub.Members(presence.UserRoom("bob")))
}

func TestGatewayRejectsOtherOrganizationsDocuments(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.dial(t, "alice")
	require.NoError(t, alice.WriteJSON(clientMessage{Type: TypeJoinRoom, RoomID: "document:doc-1"}))
	readUntil(t, alice, presence.TypePresenceUpdate)

	eve := f.dialAs(t, auth.Principal{ActorID: "eve", Role: "ORG_ADMIN", OrganizationID: "org-2"})
	for _, room := range []string{"document:doc-1", "document:doc-missing"} {
		require.NoError(t, eve.WriteJSON(clientMessage{Type: TypeJoinRoom, RoomID: room}))
		msg := readUntil(t, eve, TypeError)
		assert.Equal(t, room, msg.RoomID)
		assert.Equal(t, "room not allowed", msg.Payload["message"])
	}
	assert.Equal(t, []string{"alice"}, memberIDsOf(f.hub.Members(presence.DocumentRoom("doc-1"))))

	f.hub.Publish(presence.DocumentRoom("doc-1"), presence.Message{
		Type:    presence.TypeWorkflowAction,
		Payload: map[string]string{"comment": "salary band is confidential: 250k"},
	})
	readUntil(t, alice, presence.TypeWorkflowAction)

	// eve's own documents stay reachable; the next frame must be her presence
	// update, not the doc-1 broadcast
	require.NoError(t, eve.WriteJSON(clientMessage{Type: TypeJoinRoom, RoomID: "document:doc-2"}))
	msg := read(t, eve)
	assert.Equal(t, presence.TypePresenceUpdate, msg.Type)
	assert.Equal(t, "document:doc-2", msg.RoomID)
}

func TestGatewaySuperAdminJoinsAnyDocument(t *testing.T) {
	f := newGatewayFixture(t)
	root := f.dialAs(t, auth.Principal{ActorID: "root", Role: "SUPER_ADMIN", OrganizationID: "org-9"})

	require.NoError(t, root.WriteJSON(clientMessage{Type: TypeJoinRoom, RoomID: "document:doc-1"}))
	update := readUntil(t, root, presence.TypePresenceUpdate)
	assert.Equal(t, "document:doc-1", update.RoomID)
	assert.Equal(t, []string{"root"}, memberIDs(update))
}

func TestClientDropsWhenQueueFull(t *testing.T) {
	g := NewGateway(GatewayConfig{SendQueueSize: 1}, presence.NewHub(nil), nil, nil, nil, zap.NewNop())
	c := &client{
		gateway: g,
		member:  presence.Member{ConnectionID: "c-1", ActorID: "alice"},
		send:    make(chan []byte, 1),
		done:    make(chan struct{}),
	}

	c.enqueue(presence.Message{Type: presence.TypeWorkflowAction})
	c.enqueue(presence.Message{Type: presence.TypeWorkflowAction})
	c.enqueue(presence.Message{Type: presence.TypeWorkflowAction})

	assert.Len(t, c.send, 1)
	assert.Equal(t, int64(2), g.Dropped())
}

func memberIDsOf(members []presence.Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ActorID)
	}
	return ids
}
