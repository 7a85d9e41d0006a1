package workflow

import (
	"github.com/garyjia/jd-approval/internal/domain/entity"
	domainwf "github.com/garyjia/jd-approval/internal/domain/workflow"
)

// BuildApprovalStateMachine creates the approval state machine positioned at
// initialState. isLastStep decides whether APPROVE finishes the workflow or
// advances it to the next step.
func BuildApprovalStateMachine(initialState domainwf.State, isLastStep domainwf.GuardFunc) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	// PENDING: created but not yet started
	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerStart, domainwf.StateInProgress).
		PermitReentry(domainwf.TriggerComment).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// IN_PROGRESS: waiting on the current step's approver
	builder.Configure(domainwf.StateInProgress).
		PermitIf(domainwf.TriggerApprove, domainwf.StateApproved, isLastStep).
		PermitReentry(domainwf.TriggerApprove).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		PermitReentry(domainwf.TriggerRequestChanges).
		PermitReentry(domainwf.TriggerComment).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// APPROVED, REJECTED and CANCELLED are terminal

	return builder.Build(initialState)
}

// triggerFor maps an action type to its trigger
func triggerFor(action entity.ActionType) domainwf.Trigger {
	switch action {
	case entity.ActionApprove:
		return domainwf.TriggerApprove
	case entity.ActionReject:
		return domainwf.TriggerReject
	case entity.ActionRequestChanges:
		return domainwf.TriggerRequestChanges
	default:
		return domainwf.TriggerComment
	}
}
