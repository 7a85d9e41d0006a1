package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/jd-approval/internal/application/dispatcher"
	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/domain/event"
	domainwf "github.com/garyjia/jd-approval/internal/domain/workflow"
	"github.com/garyjia/jd-approval/pkg/apperrors"
	"github.com/garyjia/jd-approval/pkg/utils"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	workflowRepo port.WorkflowRepository
	documents    port.DocumentStore
	identities   port.IdentityProvider
	txManager    port.TransactionManager
	cancelPolicy CancelAuthorizer

	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
	stepDueIn  time.Duration
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithStepDueIn stamps a due date on every step when it becomes current.
// Zero leaves due dates unset.
func WithStepDueIn(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.stepDueIn = d
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	workflowRepo port.WorkflowRepository,
	documents port.DocumentStore,
	identities port.IdentityProvider,
	txManager port.TransactionManager,
	cancelPolicy CancelAuthorizer,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		workflowRepo: workflowRepo,
		documents:    documents,
		identities:   identities,
		txManager:    txManager,
		cancelPolicy: cancelPolicy,
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateWorkflow starts a workflow in IN_PROGRESS with step 1 current
func (e *engineImpl) CreateWorkflow(ctx context.Context, in CreateWorkflowInput) (*entity.Workflow, error) {
	documentID := strings.TrimSpace(in.DocumentID)
	if documentID == "" {
		return nil, apperrors.NewValidationError("documentId", "is required")
	}
	approverIDs, err := normalizeApprovers(in.ApproverIDs)
	if err != nil {
		return nil, err
	}

	requester, err := e.resolveActor(ctx, in.RequestedBy, "create")
	if err != nil {
		return nil, err
	}

	var wf *entity.Workflow
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		orgID, err := e.documents.GetDocumentOrganization(txCtx, documentID)
		if err != nil {
			return err
		}
		// Foreign documents are reported as missing, matching the read policy.
		if orgID != requester.OrganizationID && requester.Role != entity.RoleSuperAdmin {
			return apperrors.NewNotFoundError("document", documentID)
		}
		if err := e.checkApprovers(txCtx, orgID, approverIDs); err != nil {
			return err
		}

		status, err := e.documents.GetDocumentStatus(txCtx, documentID)
		if err != nil {
			return err
		}

		active, err := e.workflowRepo.GetActiveByDocumentID(txCtx, documentID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperrors.NewValidationError("documentId",
				fmt.Sprintf("document already has active workflow %s", active.ID))
		}
		if status != entity.DocumentStatusDraft {
			return apperrors.NewValidationError("documentId",
				fmt.Sprintf("document must be %s to submit, is %s", entity.DocumentStatusDraft, status))
		}

		wf = e.newWorkflow(documentID, orgID, requester, approverIDs)

		machine := BuildApprovalStateMachine(domainwf.StatePending, nil)
		tr, err := machine.Fire(txCtx, domainwf.TriggerStart)
		if err != nil {
			return err
		}
		wf.Status = entity.WorkflowStatus(tr.To)
		e.activateStep(wf.CurrentStep(), wf.CreatedAt)

		if err := e.workflowRepo.Create(txCtx, wf); err != nil {
			return err
		}
		if err := e.documents.LockActiveWorkflow(txCtx, documentID, wf.ID); err != nil {
			return err
		}
		return e.documents.SetDocumentStatus(txCtx, documentID, entity.DocumentStatusInReview)
	})
	if err != nil {
		e.logError("Create workflow failed", err, "document_id", documentID, "requested_by", in.RequestedBy)
		return nil, err
	}

	e.logInfo("Workflow created",
		"workflow_id", wf.ID,
		"document_id", wf.DocumentID,
		"steps", len(wf.Steps),
	)

	e.emit(ctx, wf, event.NewEvent(event.TypeWorkflowCreated, wf.ID, wf.DocumentID, map[string]interface{}{
		event.KeyActorID:     wf.CreatedBy,
		event.KeyApproverIDs: approverIDs,
		event.KeyApproverID:  approverIDs[0],
		event.KeyNewStatus:   string(wf.Status),
	}))

	return wf, nil
}

// RecordDecision applies a decision of the current approver.
// Checks run in order: existence, authorization, then input validation.
func (e *engineImpl) RecordDecision(ctx context.Context, in DecisionInput) (*entity.Workflow, error) {
	if !in.Action.IsDecision() {
		return nil, apperrors.NewValidationError("action",
			fmt.Sprintf("must be one of APPROVE, REJECT, REQUEST_CHANGES, got %q", in.Action))
	}

	var (
		wf         *entity.Workflow
		action     *entity.Action
		nextStep   *entity.Step
		decided    int
		transition domainwf.Transition
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		wf, err = e.loadWorkflow(txCtx, in.WorkflowID)
		if err != nil {
			return err
		}

		step := wf.CurrentStep()
		if step == nil {
			return apperrors.NewNotFoundError("step", fmt.Sprintf("%s#%d", wf.ID, wf.CurrentStepOrder))
		}
		if wf.IsTerminal() {
			return apperrors.NewAuthorizationError(string(in.Action), in.ActorID,
				fmt.Sprintf("workflow is %s", wf.Status))
		}
		if step.ApproverID != in.ActorID {
			return apperrors.NewAuthorizationError(string(in.Action), in.ActorID,
				fmt.Sprintf("not the approver of step %d", step.Order))
		}
		if step.Status != entity.StepStatusPending {
			return apperrors.NewConflictError("step", step.ID, fmt.Sprintf("step already %s", step.Status))
		}
		decided = step.Order
		if in.Action.RequiresComment() && strings.TrimSpace(in.Comment) == "" {
			return apperrors.NewValidationError("comment", fmt.Sprintf("is required for %s", in.Action))
		}

		expectedVersion := wf.Version
		machine, err := e.machineFor(wf)
		if err != nil {
			return err
		}
		transition, err = machine.Fire(txCtx, triggerFor(in.Action))
		if err != nil {
			return e.transitionError(err, string(in.Action), in.ActorID)
		}

		now := e.now()
		action = e.newAction(wf, step, in.Action, in.Comment, in.ActorID, now)
		if err := e.workflowRepo.AppendAction(txCtx, action); err != nil {
			return err
		}

		switch in.Action {
		case entity.ActionApprove:
			step.Status = entity.StepStatusApproved
			step.UpdatedAt = now
			if err := e.workflowRepo.UpdateStep(txCtx, step); err != nil {
				return err
			}
			if transition.To == domainwf.StateApproved {
				if err := e.finish(txCtx, wf, entity.WorkflowStatusApproved, entity.DocumentStatusApproved, now); err != nil {
					return err
				}
			} else {
				wf.CurrentStepOrder++
				nextStep = wf.CurrentStep()
				if nextStep == nil {
					return apperrors.NewNotFoundError("step", fmt.Sprintf("%s#%d", wf.ID, wf.CurrentStepOrder))
				}
				e.activateStep(nextStep, now)
				if err := e.workflowRepo.UpdateStep(txCtx, nextStep); err != nil {
					return err
				}
			}

		case entity.ActionReject:
			// later steps stay PENDING: abandoned, not skipped
			step.Status = entity.StepStatusRejected
			step.UpdatedAt = now
			if err := e.workflowRepo.UpdateStep(txCtx, step); err != nil {
				return err
			}
			if err := e.finish(txCtx, wf, entity.WorkflowStatusRejected, entity.DocumentStatusDraft, now); err != nil {
				return err
			}
		}

		// Every decision bumps the version so concurrent decisions on the
		// same step serialize even when no status changes.
		wf.UpdatedAt = now
		if err := e.workflowRepo.UpdateState(txCtx, wf, expectedVersion); err != nil {
			return err
		}

		step.Actions = append(step.Actions, action)
		return nil
	})
	if err != nil {
		e.logError("Record decision failed", err,
			"workflow_id", in.WorkflowID,
			"actor_id", in.ActorID,
			"action", in.Action,
		)
		return nil, err
	}

	e.logInfo("Decision recorded",
		"workflow_id", wf.ID,
		"action", in.Action,
		"from", transition.From,
		"to", transition.To,
		"current_step", wf.CurrentStepOrder,
	)

	payload := map[string]interface{}{
		event.KeyAction:    string(in.Action),
		event.KeyNewStatus: string(wf.Status),
		event.KeyActorID:   in.ActorID,
		event.KeyComment:   action.Comment,
		event.KeyStepOrder: decided,
	}
	if nextStep != nil {
		payload[event.KeyNextActorID] = nextStep.ApproverID
	}
	e.emit(ctx, wf, event.NewEvent(event.TypeWorkflowAction, wf.ID, wf.DocumentID, payload))

	return wf, nil
}

// AddComment appends a COMMENT action to the current step
func (e *engineImpl) AddComment(ctx context.Context, in CommentInput) (*entity.Workflow, error) {
	var (
		wf     *entity.Workflow
		action *entity.Action
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		wf, err = e.loadWorkflow(txCtx, in.WorkflowID)
		if err != nil {
			return err
		}

		step := wf.CurrentStep()
		if step == nil {
			return apperrors.NewNotFoundError("step", fmt.Sprintf("%s#%d", wf.ID, wf.CurrentStepOrder))
		}
		if wf.IsTerminal() {
			return apperrors.NewAuthorizationError("comment", in.ActorID, fmt.Sprintf("workflow is %s", wf.Status))
		}
		if err := e.authorizeComment(txCtx, wf, in.ActorID); err != nil {
			return err
		}
		if strings.TrimSpace(in.Comment) == "" {
			return apperrors.NewValidationError("comment", "is required")
		}

		expectedVersion := wf.Version
		machine, err := e.machineFor(wf)
		if err != nil {
			return err
		}
		if _, err := machine.Fire(txCtx, domainwf.TriggerComment); err != nil {
			return e.transitionError(err, "comment", in.ActorID)
		}

		now := e.now()
		action = e.newAction(wf, step, entity.ActionComment, in.Comment, in.ActorID, now)
		if err := e.workflowRepo.AppendAction(txCtx, action); err != nil {
			return err
		}

		wf.UpdatedAt = now
		if err := e.workflowRepo.UpdateState(txCtx, wf, expectedVersion); err != nil {
			return err
		}

		step.Actions = append(step.Actions, action)
		return nil
	})
	if err != nil {
		e.logError("Add comment failed", err, "workflow_id", in.WorkflowID, "actor_id", in.ActorID)
		return nil, err
	}

	e.emit(ctx, wf, event.NewEvent(event.TypeWorkflowAction, wf.ID, wf.DocumentID, map[string]interface{}{
		event.KeyAction:    string(entity.ActionComment),
		event.KeyNewStatus: string(wf.Status),
		event.KeyActorID:   in.ActorID,
		event.KeyComment:   action.Comment,
		event.KeyStepOrder: wf.CurrentStepOrder,
	}))

	return wf, nil
}

// CancelWorkflow cancels a non-terminal workflow and returns the document to DRAFT
func (e *engineImpl) CancelWorkflow(ctx context.Context, in CancelInput) (*entity.Workflow, error) {
	var wf *entity.Workflow

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		wf, err = e.loadWorkflow(txCtx, in.WorkflowID)
		if err != nil {
			return err
		}
		if wf.IsTerminal() {
			return apperrors.NewAuthorizationError("cancel", in.RequestedBy, fmt.Sprintf("workflow is %s", wf.Status))
		}

		requester, err := e.resolveActor(txCtx, in.RequestedBy, "cancel")
		if err != nil {
			return err
		}
		allowed, err := e.cancelPolicy.Allows(requester, wf)
		if err != nil {
			return err
		}
		if !allowed {
			return apperrors.NewAuthorizationError("cancel", in.RequestedBy,
				"only the creator or a privileged role may cancel")
		}

		expectedVersion := wf.Version
		machine, err := e.machineFor(wf)
		if err != nil {
			return err
		}
		if _, err := machine.Fire(txCtx, domainwf.TriggerCancel); err != nil {
			return e.transitionError(err, "cancel", in.RequestedBy)
		}

		wf.CancelReason = strings.TrimSpace(in.Reason)
		now := e.now()
		if err := e.finish(txCtx, wf, entity.WorkflowStatusCancelled, entity.DocumentStatusDraft, now); err != nil {
			return err
		}
		wf.UpdatedAt = now
		return e.workflowRepo.UpdateState(txCtx, wf, expectedVersion)
	})
	if err != nil {
		e.logError("Cancel workflow failed", err, "workflow_id", in.WorkflowID, "requested_by", in.RequestedBy)
		return nil, err
	}

	e.logInfo("Workflow cancelled", "workflow_id", wf.ID, "requested_by", in.RequestedBy)

	e.emit(ctx, wf, event.NewEvent(event.TypeWorkflowCancelled, wf.ID, wf.DocumentID, map[string]interface{}{
		event.KeyActorID:   in.RequestedBy,
		event.KeyReason:    wf.CancelReason,
		event.KeyNewStatus: string(wf.Status),
	}))

	return wf, nil
}

// GetWorkflow returns the latest workflow of a document
func (e *engineImpl) GetWorkflow(ctx context.Context, documentID string) (*entity.Workflow, error) {
	wf, err := e.workflowRepo.GetLatestByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, apperrors.NewNotFoundError("workflow", "document:"+documentID)
	}
	return wf, nil
}

// GetWorkflowByID returns a workflow by id
func (e *engineImpl) GetWorkflowByID(ctx context.Context, id string) (*entity.Workflow, error) {
	return e.loadWorkflow(ctx, id)
}

// GetPendingForActor is a read-only projection
func (e *engineImpl) GetPendingForActor(ctx context.Context, actorID string) ([]*entity.Workflow, error) {
	workflows, err := e.workflowRepo.ListPendingForApprover(ctx, actorID)
	if err != nil {
		return nil, err
	}

	pending := make([]*entity.Workflow, 0, len(workflows))
	for _, wf := range workflows {
		if wf.IsAwaiting(actorID) {
			pending = append(pending, wf)
		}
	}
	return pending, nil
}

func (e *engineImpl) loadWorkflow(ctx context.Context, id string) (*entity.Workflow, error) {
	wf, err := e.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, apperrors.NewNotFoundError("workflow", id)
	}
	return wf, nil
}

func (e *engineImpl) machineFor(wf *entity.Workflow) (domainwf.StateMachine, error) {
	state := domainwf.State(wf.Status)
	if !state.IsValid() {
		return nil, apperrors.NewStorageError("load workflow",
			fmt.Errorf("workflow %s has unknown status %q", wf.ID, wf.Status))
	}
	return BuildApprovalStateMachine(state, func(context.Context) bool {
		return wf.IsLastStep()
	}), nil
}

// transitionError converts state machine refusals to authorization errors
func (e *engineImpl) transitionError(err error, action, actorID string) error {
	if errors.Is(err, domainwf.ErrTerminalState) ||
		errors.Is(err, domainwf.ErrInvalidTransition) ||
		errors.Is(err, domainwf.ErrGuardFailed) {
		return apperrors.NewAuthorizationError(action, actorID, err.Error())
	}
	return err
}

// finish moves the workflow to a terminal status and releases the document
func (e *engineImpl) finish(ctx context.Context, wf *entity.Workflow, status entity.WorkflowStatus, docStatus entity.DocumentStatus, now time.Time) error {
	wf.Status = status
	wf.CompletedAt = &now

	if err := e.documents.SetDocumentStatus(ctx, wf.DocumentID, docStatus); err != nil {
		return err
	}
	return e.documents.ReleaseWorkflowLock(ctx, wf.DocumentID, wf.ID)
}

func (e *engineImpl) activateStep(step *entity.Step, now time.Time) {
	if step == nil {
		return
	}
	step.UpdatedAt = now
	if e.stepDueIn > 0 {
		due := now.Add(e.stepDueIn)
		step.DueDate = &due
	}
}

func (e *engineImpl) newWorkflow(documentID, orgID string, requester *entity.Identity, approverIDs []string) *entity.Workflow {
	now := e.now()
	wf := &entity.Workflow{
		ID:               utils.NewID(),
		DocumentID:       documentID,
		OrganizationID:   orgID,
		CreatedBy:        requester.ActorID,
		Status:           entity.WorkflowStatusPending,
		CurrentStepOrder: 1,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for i, approverID := range approverIDs {
		wf.Steps = append(wf.Steps, &entity.Step{
			ID:         utils.NewID(),
			WorkflowID: wf.ID,
			Order:      i + 1,
			ApproverID: approverID,
			Status:     entity.StepStatusPending,
			Actions:    []*entity.Action{},
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return wf
}

func (e *engineImpl) newAction(wf *entity.Workflow, step *entity.Step, kind entity.ActionType, comment, actorID string, now time.Time) *entity.Action {
	return &entity.Action{
		ID:         utils.NewID(),
		StepID:     step.ID,
		WorkflowID: wf.ID,
		Action:     kind,
		Comment:    strings.TrimSpace(comment),
		ActorID:    actorID,
		CreatedAt:  now,
	}
}

// resolveActor maps an unknown requester to an authorization failure
func (e *engineImpl) resolveActor(ctx context.Context, actorID, action string) (*entity.Identity, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, apperrors.NewAuthorizationError(action, actorID, "no authenticated actor")
	}
	identity, err := e.identities.Resolve(ctx, actorID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewAuthorizationError(action, actorID, "unknown actor")
		}
		return nil, err
	}
	return identity, nil
}

// checkApprovers requires every approver to exist in the document's organization
func (e *engineImpl) checkApprovers(ctx context.Context, orgID string, approverIDs []string) error {
	for i, id := range approverIDs {
		identity, err := e.identities.Resolve(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.NewValidationError(fmt.Sprintf("approverIds[%d]", i), "unknown actor "+id)
			}
			return err
		}
		if identity.OrganizationID != orgID {
			return apperrors.NewValidationError(fmt.Sprintf("approverIds[%d]", i),
				fmt.Sprintf("actor %s belongs to another organization", id))
		}
	}
	return nil
}

// authorizeComment allows the creator, any approver, or whoever may cancel
func (e *engineImpl) authorizeComment(ctx context.Context, wf *entity.Workflow, actorID string) error {
	if actorID != "" && (actorID == wf.CreatedBy || wf.HasApprover(actorID)) {
		return nil
	}

	identity, err := e.resolveActor(ctx, actorID, "comment")
	if err != nil {
		return err
	}
	allowed, err := e.cancelPolicy.Allows(identity, wf)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.NewAuthorizationError("comment", actorID, "not a participant of this workflow")
	}
	return nil
}

// emit dispatches after commit; failures are logged by the dispatcher
func (e *engineImpl) emit(ctx context.Context, wf *entity.Workflow, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, evt.InOrganization(wf.OrganizationID))
}

func (e *engineImpl) logInfo(msg string, kv ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, kv...)
	}
}

func (e *engineImpl) logError(msg string, err error, kv ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, append(kv, "error", err)...)
	}
}

// normalizeApprovers trims ids and rejects empty lists, blanks and duplicates
func normalizeApprovers(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("approverIds", "at least one approver is required")
	}

	seen := make(map[string]int, len(ids))
	out := make([]string, 0, len(ids))
	for i, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, apperrors.NewValidationError(fmt.Sprintf("approverIds[%d]", i), "is blank")
		}
		if first, dup := seen[id]; dup {
			return nil, apperrors.NewValidationError("approverIds",
				fmt.Sprintf("duplicate approver %s at positions %d and %d", id, first+1, i+1))
		}
		seen[id] = i
		out = append(out, id)
	}
	return out, nil
}
