package workflow

import (
	"context"

	"github.com/garyjia/jd-approval/internal/domain/entity"
)

// Engine is the sole mutator of workflows, steps and actions
type Engine interface {
	// CreateWorkflow starts an approval pipeline for a DRAFT document
	CreateWorkflow(ctx context.Context, in CreateWorkflowInput) (*entity.Workflow, error)

	// RecordDecision applies APPROVE, REJECT or REQUEST_CHANGES from the
	// current step's approver
	RecordDecision(ctx context.Context, in DecisionInput) (*entity.Workflow, error)

	// AddComment appends a COMMENT to the current step without a transition
	AddComment(ctx context.Context, in CommentInput) (*entity.Workflow, error)

	// CancelWorkflow moves a non-terminal workflow to CANCELLED
	CancelWorkflow(ctx context.Context, in CancelInput) (*entity.Workflow, error)

	// GetWorkflow returns the latest workflow of a document
	GetWorkflow(ctx context.Context, documentID string) (*entity.Workflow, error)

	// GetWorkflowByID returns a workflow by its id
	GetWorkflowByID(ctx context.Context, id string) (*entity.Workflow, error)

	// GetPendingForActor returns workflows waiting on actorID
	GetPendingForActor(ctx context.Context, actorID string) ([]*entity.Workflow, error)
}

// CreateWorkflowInput is the input of CreateWorkflow
type CreateWorkflowInput struct {
	DocumentID  string
	ApproverIDs []string
	RequestedBy string
}

// DecisionInput is the input of RecordDecision
type DecisionInput struct {
	WorkflowID string
	ActorID    string
	Action     entity.ActionType
	Comment    string
}

// CommentInput is the input of AddComment
type CommentInput struct {
	WorkflowID string
	ActorID    string
	Comment    string
}

// CancelInput is the input of CancelWorkflow
type CancelInput struct {
	WorkflowID  string
	RequestedBy string
	Reason      string
}

// CancelAuthorizer decides whether an actor may cancel a workflow
type CancelAuthorizer interface {
	Allows(actor *entity.Identity, wf *entity.Workflow) (bool, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
