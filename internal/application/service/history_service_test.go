package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/jd-approval/internal/domain/entity"
)

type mockRenderer struct {
	gotNames map[string]string
	err      error
}

func (m *mockRenderer) Render(wf *entity.Workflow, actorNames map[string]string) ([]byte, error) {
	m.gotNames = actorNames
	if m.err != nil {
		return nil, m.err
	}
	return []byte("xlsx"), nil
}

func (m *mockRenderer) ContentType() string { return "application/test" }
func (m *mockRenderer) Extension() string   { return "xlsx" }

func TestHistoryService_Export(t *testing.T) {
	wf := &entity.Workflow{
		ID: "wf-1",
		Steps: []*entity.Step{
			{Order: 1, ApproverID: "alice", Actions: []*entity.Action{{ActorID: "alice", Action: entity.ActionApprove}}},
			{Order: 2, ApproverID: "ghost"},
		},
	}
	ids := mockIdentities{"alice": {ActorID: "alice", DisplayName: "Alice Liddell"}}
	renderer := &mockRenderer{}

	out, err := NewHistoryService(ids, renderer, nopLogger{}).Export(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, "workflow-wf-1-history.xlsx", out.Filename)
	assert.Equal(t, "application/test", out.ContentType)
	assert.Equal(t, []byte("xlsx"), out.Content)
	assert.Equal(t, map[string]string{"alice": "Alice Liddell", "ghost": "ghost"}, renderer.gotNames)
}

func TestHistoryService_RenderError(t *testing.T) {
	renderer := &mockRenderer{err: errors.New("boom")}
	_, err := NewHistoryService(mockIdentities{}, renderer, nopLogger{}).Export(context.Background(), &entity.Workflow{ID: "wf-1"})
	assert.Error(t, err)
}
