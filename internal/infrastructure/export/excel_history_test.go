package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/domain/entity"
)

func historyFixture() *entity.Workflow {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	done := base.Add(2 * time.Hour)
	return &entity.Workflow{
		ID:               "wf-1",
		DocumentID:       "doc-1",
		OrganizationID:   "org-1",
		CreatedBy:        "owner",
		Status:           entity.WorkflowStatusRejected,
		CurrentStepOrder: 2,
		CreatedAt:        base,
		CompletedAt:      &done,
		Steps: []*entity.Step{
			{ID: "s-1", Order: 1, ApproverID: "alice", Status: entity.StepStatusApproved, Actions: []*entity.Action{
				{ID: "a-1", StepID: "s-1", Action: entity.ActionApprove, ActorID: "alice", CreatedAt: base.Add(time.Minute)},
				{ID: "a-3", StepID: "s-1", Action: entity.ActionComment, ActorID: "owner", Comment: "thanks", CreatedAt: base.Add(30 * time.Minute)},
			}},
			{ID: "s-2", Order: 2, ApproverID: "bob", Status: entity.StepStatusRejected, Actions: []*entity.Action{
				{ID: "a-2", StepID: "s-2", Action: entity.ActionReject, ActorID: "bob", Comment: "salary band missing", CreatedAt: base.Add(time.Hour)},
			}},
			{ID: "s-3", Order: 3, ApproverID: "carol", Status: entity.StepStatusPending},
		},
	}
}

func TestExcelHistoryRenderer_Render(t *testing.T) {
	r := NewExcelHistoryRenderer(zap.NewNop())

	content, err := r.Render(historyFixture(), map[string]string{"alice": "Alice Liddell", "owner": "Olive Owner"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, historySheet}, f.GetSheetList())

	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Action", rows[0][5])

	// chronological across steps
	assert.Equal(t, []string{"1", "2026-03-02 09:01:00", "1", "Alice Liddell", "Alice Liddell", "APPROVE"}, rows[1][:6])
	assert.Equal(t, "COMMENT", rows[2][5])
	assert.Equal(t, "Olive Owner", rows[2][4])
	assert.Equal(t, "bob", rows[3][4])
	assert.Equal(t, "salary band missing", rows[3][6])
	assert.Equal(t, "3", rows[4][2])
	assert.Equal(t, "PENDING", rows[4][5])

	status, err := f.GetCellValue(summarySheet, "B5")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", status)
}

func TestExcelHistoryRenderer_EmptyHistory(t *testing.T) {
	r := NewExcelHistoryRenderer(zap.NewNop())
	wf := &entity.Workflow{ID: "wf-2", Status: entity.WorkflowStatusInProgress, CurrentStepOrder: 1}

	content, err := r.Render(wf, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "xlsx", r.Extension())
}
