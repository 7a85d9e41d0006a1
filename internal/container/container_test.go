package container

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/domain/event"
	"github.com/garyjia/jd-approval/pkg/auth"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "approval.db")
	cfg.Auth.JWTSecret = "container-test"
	return cfg
}

func startContainer(t *testing.T, cfg *Config) *Container {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if !c.closed.Load() {
			c.Close()
		}
	})
	return c
}

func call(t *testing.T, c *Container, token, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	c.Server().Router().ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Lark.AppID = "cli_only_id"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_InvalidCancelPolicyFailsStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.CancelPolicy = "actor.role =="

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel policy")
	assert.False(t, c.Ready())
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t, testConfig(t))

	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start")

	health := c.Health()
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.True(t, health.Components["database"].Healthy)
	assert.Equal(t, 1, c.Workers().Count())
	assert.ElementsMatch(t, []string{"notification", "presence"},
		c.Dispatcher().Handlers(event.TypeWorkflowCreated))

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close")
}

func TestContainer_ApprovalOverHTTP(t *testing.T) {
	c := startContainer(t, testConfig(t))
	ctx := context.Background()

	for _, a := range []*entity.Actor{
		{ID: "owner", Email: "owner@acme.test", FirstName: "Olive", Role: entity.RoleHiringManager, OrganizationID: "org-1"},
		{ID: "alice", Email: "alice@acme.test", FirstName: "Alice", Role: entity.RoleHRManager, OrganizationID: "org-1", LarkOpenID: "ou_alice"},
	} {
		require.NoError(t, c.Repositories().Actor.Upsert(ctx, a))
	}

	issue := func(p auth.Principal) string {
		token, err := c.Tokens().Issue(p)
		require.NoError(t, err)
		return token
	}
	ownerToken := issue(auth.Principal{ActorID: "owner", Role: string(entity.RoleHiringManager), OrganizationID: "org-1"})
	aliceToken := issue(auth.Principal{ActorID: "alice", Role: string(entity.RoleHRManager), OrganizationID: "org-1"})

	code, env := call(t, c, ownerToken, http.MethodPost, "/api/documents", map[string]string{"title": "Staff Engineer"})
	require.Equal(t, http.StatusCreated, code)
	var doc entity.Document
	require.NoError(t, json.Unmarshal(env.Data, &doc))

	code, env = call(t, c, ownerToken, http.MethodPost, "/api/workflows", map[string]interface{}{
		"documentId":  doc.ID,
		"approverIds": []string{"alice"},
	})
	require.Equal(t, http.StatusCreated, code)
	var wf entity.Workflow
	require.NoError(t, json.Unmarshal(env.Data, &wf))
	assert.Equal(t, entity.WorkflowStatusInProgress, wf.Status)

	code, env = call(t, c, ownerToken, http.MethodPost, "/api/workflows/"+wf.ID+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	code, env = call(t, c, aliceToken, http.MethodPost, "/api/workflows/"+wf.ID+"/approve", map[string]string{"comment": "lgtm"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &wf))
	assert.Equal(t, entity.WorkflowStatusApproved, wf.Status)

	code, env = call(t, c, ownerToken, http.MethodGet, "/api/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, entity.DocumentStatusApproved, doc.Status)

	// delivery is asynchronous; alice was assigned and the owner was told
	require.Eventually(t, func() bool {
		log, err := c.Repositories().Notification.ListByWorkflowID(ctx, wf.ID)
		return err == nil && len(log) >= 2
	}, 2*time.Second, 20*time.Millisecond)

	log, err := c.Repositories().Notification.ListByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, ChannelLog, log[0].Channel)
}
