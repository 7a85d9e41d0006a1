package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/jd-approval/pkg/apperrors"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `
	id, document_id, organization_id, created_by, status,
	current_step_order, version, cancel_reason,
	created_at, updated_at, completed_at
`

const activeStatuses = `('PENDING', 'IN_PROGRESS')`

// Create inserts the workflow row and all of its steps
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	query := `
		INSERT INTO approval_workflows (
			id, document_id, organization_id, created_by, status,
			current_step_order, version, cancel_reason,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := sqlite.ExecutorFor(ctx, r.db)
	_, err := exec.ExecContext(ctx, query,
		wf.ID,
		wf.DocumentID,
		wf.OrganizationID,
		wf.CreatedBy,
		wf.Status,
		wf.CurrentStepOrder,
		wf.Version,
		wf.CancelReason,
		wf.CreatedAt,
		wf.UpdatedAt,
		nullTime(wf.CompletedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create workflow",
			zap.String("workflow_id", wf.ID),
			zap.String("document_id", wf.DocumentID),
			zap.Error(err))
		return sqlite.MapError("create workflow", err)
	}

	stepQuery := `
		INSERT INTO approval_steps (
			id, workflow_id, step_order, approver_id, status,
			due_date, reminded_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, step := range wf.Steps {
		_, err := exec.ExecContext(ctx, stepQuery,
			step.ID,
			wf.ID,
			step.Order,
			step.ApproverID,
			step.Status,
			nullTime(step.DueDate),
			nullTime(step.RemindedAt),
			step.CreatedAt,
			step.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create workflow step",
				zap.String("workflow_id", wf.ID),
				zap.Int("step_order", step.Order),
				zap.Error(err))
			return sqlite.MapError("create workflow step", err)
		}
	}

	return nil
}

// GetByID loads the workflow with steps and actions
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id = ?`
	return r.load(ctx, query, id)
}

// GetLatestByDocumentID loads the most recently created workflow of a document
func (r *WorkflowRepository) GetLatestByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE document_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`
	return r.load(ctx, query, documentID)
}

// GetActiveByDocumentID loads the non-terminal workflow of a document
func (r *WorkflowRepository) GetActiveByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE document_id = ? AND status IN ` + activeStatuses + `
		LIMIT 1
	`
	return r.load(ctx, query, documentID)
}

// ListPendingForApprover returns the workflows waiting on approverID
func (r *WorkflowRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Workflow, error) {
	query := `
		SELECT w.id
		FROM approval_workflows w
		JOIN approval_steps s
			ON s.workflow_id = w.id AND s.step_order = w.current_step_order
		WHERE s.approver_id = ?
			AND s.status = 'PENDING'
			AND w.status IN ` + activeStatuses + `
		ORDER BY w.created_at ASC
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, approverID)
	if err != nil {
		r.logger.Error("Failed to list pending workflows", zap.String("approver_id", approverID), zap.Error(err))
		return nil, sqlite.MapError("list pending workflows", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, sqlite.MapError("scan pending workflow", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, sqlite.MapError("iterate pending workflows", err)
	}
	rows.Close()

	workflows := make([]*entity.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if wf != nil {
			workflows = append(workflows, wf)
		}
	}

	return workflows, nil
}

// ListOverdueSteps returns current PENDING steps due before now that were never reminded
func (r *WorkflowRepository) ListOverdueSteps(ctx context.Context, now time.Time) ([]*port.OverdueStep, error) {
	query := `
		SELECT w.id, w.document_id, w.organization_id,
			s.id, s.step_order, s.approver_id, s.due_date
		FROM approval_workflows w
		JOIN approval_steps s
			ON s.workflow_id = w.id AND s.step_order = w.current_step_order
		WHERE w.status IN ` + activeStatuses + `
			AND s.status = 'PENDING'
			AND s.due_date IS NOT NULL
			AND s.due_date < ?
			AND s.reminded_at IS NULL
		ORDER BY s.due_date ASC
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, now.UTC())
	if err != nil {
		r.logger.Error("Failed to list overdue steps", zap.Error(err))
		return nil, sqlite.MapError("list overdue steps", err)
	}
	defer rows.Close()

	var steps []*port.OverdueStep
	for rows.Next() {
		var s port.OverdueStep
		if err := rows.Scan(
			&s.WorkflowID,
			&s.DocumentID,
			&s.OrganizationID,
			&s.StepID,
			&s.StepOrder,
			&s.ApproverID,
			&s.DueDate,
		); err != nil {
			return nil, sqlite.MapError("scan overdue step", err)
		}
		steps = append(steps, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, sqlite.MapError("iterate overdue steps", err)
	}

	return steps, nil
}

// UpdateState writes the mutable workflow columns guarded by the version
func (r *WorkflowRepository) UpdateState(ctx context.Context, wf *entity.Workflow, expectedVersion int) error {
	query := `
		UPDATE approval_workflows
		SET status = ?, current_step_order = ?, cancel_reason = ?,
			completed_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		wf.Status,
		wf.CurrentStepOrder,
		wf.CancelReason,
		nullTime(wf.CompletedAt),
		wf.UpdatedAt,
		wf.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow state",
			zap.String("workflow_id", wf.ID),
			zap.String("status", string(wf.Status)),
			zap.Error(err))
		return sqlite.MapError("update workflow state", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return sqlite.MapError("update workflow state", err)
	}
	if affected == 0 {
		r.logger.Info("Workflow version moved, update rejected",
			zap.String("workflow_id", wf.ID),
			zap.Int("expected_version", expectedVersion))
		return apperrors.NewConflictError("workflow", wf.ID, "workflow was modified concurrently")
	}

	wf.Version = expectedVersion + 1
	return nil
}

// UpdateStep writes a step's status and due date
func (r *WorkflowRepository) UpdateStep(ctx context.Context, step *entity.Step) error {
	query := `
		UPDATE approval_steps
		SET status = ?, due_date = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		step.Status,
		nullTime(step.DueDate),
		step.UpdatedAt,
		step.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update step", zap.String("step_id", step.ID), zap.Error(err))
		return sqlite.MapError("update step", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return sqlite.MapError("update step", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("step", step.ID)
	}

	return nil
}

// AppendAction inserts an audit record
func (r *WorkflowRepository) AppendAction(ctx context.Context, action *entity.Action) error {
	query := `
		INSERT INTO approval_actions (
			id, step_id, workflow_id, action, comment, actor_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		action.ID,
		action.StepID,
		action.WorkflowID,
		action.Action,
		action.Comment,
		action.ActorID,
		action.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append action",
			zap.String("workflow_id", action.WorkflowID),
			zap.String("step_id", action.StepID),
			zap.String("action", string(action.Action)),
			zap.Error(err))
		return sqlite.MapError("append action", err)
	}

	return nil
}

// MarkReminded stamps remindedAt on a step
func (r *WorkflowRepository) MarkReminded(ctx context.Context, stepID string, at time.Time) error {
	query := `UPDATE approval_steps SET reminded_at = ? WHERE id = ?`

	if _, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, at.UTC(), stepID); err != nil {
		r.logger.Error("Failed to mark step reminded", zap.String("step_id", stepID), zap.Error(err))
		return sqlite.MapError("mark step reminded", err)
	}

	return nil
}

// load reads one workflow row and attaches its steps and actions
func (r *WorkflowRepository) load(ctx context.Context, query string, args ...interface{}) (*entity.Workflow, error) {
	exec := sqlite.ExecutorFor(ctx, r.db)

	var wf entity.Workflow
	var completedAt sql.NullTime

	err := exec.QueryRowContext(ctx, query, args...).Scan(
		&wf.ID,
		&wf.DocumentID,
		&wf.OrganizationID,
		&wf.CreatedBy,
		&wf.Status,
		&wf.CurrentStepOrder,
		&wf.Version,
		&wf.CancelReason,
		&wf.CreatedAt,
		&wf.UpdatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to load workflow", zap.Any("args", args), zap.Error(err))
		return nil, sqlite.MapError("load workflow", err)
	}
	if completedAt.Valid {
		wf.CompletedAt = &completedAt.Time
	}

	steps, err := r.loadSteps(ctx, exec, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.Steps = steps

	if err := r.attachActions(ctx, exec, &wf); err != nil {
		return nil, err
	}

	return &wf, nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, exec sqlite.Executor, workflowID string) ([]*entity.Step, error) {
	query := `
		SELECT id, workflow_id, step_order, approver_id, status,
			due_date, reminded_at, created_at, updated_at
		FROM approval_steps
		WHERE workflow_id = ?
		ORDER BY step_order ASC
	`

	rows, err := exec.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, sqlite.MapError("load steps", err)
	}
	defer rows.Close()

	var steps []*entity.Step
	for rows.Next() {
		var step entity.Step
		var dueDate, remindedAt sql.NullTime

		if err := rows.Scan(
			&step.ID,
			&step.WorkflowID,
			&step.Order,
			&step.ApproverID,
			&step.Status,
			&dueDate,
			&remindedAt,
			&step.CreatedAt,
			&step.UpdatedAt,
		); err != nil {
			return nil, sqlite.MapError("scan step", err)
		}

		if dueDate.Valid {
			step.DueDate = &dueDate.Time
		}
		if remindedAt.Valid {
			step.RemindedAt = &remindedAt.Time
		}
		step.Actions = []*entity.Action{}
		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, sqlite.MapError("iterate steps", err)
	}

	return steps, nil
}

func (r *WorkflowRepository) attachActions(ctx context.Context, exec sqlite.Executor, wf *entity.Workflow) error {
	query := `
		SELECT id, step_id, workflow_id, action, comment, actor_id, created_at
		FROM approval_actions
		WHERE workflow_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := exec.QueryContext(ctx, query, wf.ID)
	if err != nil {
		return sqlite.MapError("load actions", err)
	}
	defer rows.Close()

	byStep := make(map[string]*entity.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		byStep[s.ID] = s
	}

	for rows.Next() {
		var action entity.Action
		if err := rows.Scan(
			&action.ID,
			&action.StepID,
			&action.WorkflowID,
			&action.Action,
			&action.Comment,
			&action.ActorID,
			&action.CreatedAt,
		); err != nil {
			return sqlite.MapError("scan action", err)
		}
		if step, ok := byStep[action.StepID]; ok {
			step.Actions = append(step.Actions, &action)
		}
	}

	return sqlite.MapError("iterate actions", rows.Err())
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
