package port

import (
	"context"
	"time"

	"github.com/garyjia/jd-approval/internal/domain/entity"
)

// WorkflowRepository persists the Workflow aggregate.
// Getters return (nil, nil) when nothing matches.
type WorkflowRepository interface {
	// Create inserts the workflow row and all of its steps
	Create(ctx context.Context, wf *entity.Workflow) error

	// GetByID loads the workflow with steps and actions
	GetByID(ctx context.Context, id string) (*entity.Workflow, error)

	// GetLatestByDocumentID loads the most recently created workflow of a document
	GetLatestByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error)

	// GetActiveByDocumentID loads the non-terminal workflow of a document
	GetActiveByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error)

	// ListPendingForApprover returns non-terminal workflows whose current
	// step is PENDING and assigned to approverID
	ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Workflow, error)

	// ListOverdueSteps returns current PENDING steps due before now that
	// were never reminded
	ListOverdueSteps(ctx context.Context, now time.Time) ([]*OverdueStep, error)

	// UpdateState writes status, current step, cancel reason and completion
	// time when the stored version equals expectedVersion, then bumps
	// wf.Version. Returns a ConflictError when the version moved.
	UpdateState(ctx context.Context, wf *entity.Workflow, expectedVersion int) error

	// UpdateStep writes a step's status and due date
	UpdateStep(ctx context.Context, step *entity.Step) error

	// AppendAction inserts an audit record
	AppendAction(ctx context.Context, action *entity.Action) error

	// MarkReminded stamps remindedAt on a step
	MarkReminded(ctx context.Context, stepID string, at time.Time) error
}

// OverdueStep is a current step past its due date
type OverdueStep struct {
	WorkflowID     string
	DocumentID     string
	OrganizationID string
	StepID         string
	StepOrder      int
	ApproverID     string
	DueDate        time.Time
}

// DocumentStore is the engine's view of the job-description store
type DocumentStore interface {
	// GetDocumentStatus returns a NotFoundError for unknown documents
	GetDocumentStatus(ctx context.Context, documentID string) (entity.DocumentStatus, error)
	// GetDocumentOrganization returns the owning organization of a document
	GetDocumentOrganization(ctx context.Context, documentID string) (string, error)

	SetDocumentStatus(ctx context.Context, documentID string, status entity.DocumentStatus) error

	// LockActiveWorkflow marks workflowID as the document's active workflow.
	// Returns a ConflictError if another workflow holds the lock.
	LockActiveWorkflow(ctx context.Context, documentID, workflowID string) error

	// ReleaseWorkflowLock clears the lock when workflowID holds it
	ReleaseWorkflowLock(ctx context.Context, documentID, workflowID string) error
}

// DocumentRepository adds draft management on top of DocumentStore
type DocumentRepository interface {
	DocumentStore
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
}

// IdentityProvider resolves actor ids to authorization attributes
type IdentityProvider interface {
	// Resolve returns a NotFoundError for unknown actors
	Resolve(ctx context.Context, actorID string) (*entity.Identity, error)
}

// ActorRepository manages the built-in actor directory
type ActorRepository interface {
	IdentityProvider
	Upsert(ctx context.Context, actor *entity.Actor) error
	GetByID(ctx context.Context, id string) (*entity.Actor, error)
	GetByEmail(ctx context.Context, email string) (*entity.Actor, error)
}

// NotificationRepository records notification delivery attempts
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	MarkSent(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status string, errorMsg string) error
	ListByWorkflowID(ctx context.Context, workflowID string) ([]*entity.Notification, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
