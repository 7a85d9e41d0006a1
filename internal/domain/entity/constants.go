package entity

// WorkflowStatus is the lifecycle status of an approval workflow
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "PENDING"
	WorkflowStatusInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowStatusApproved   WorkflowStatus = "APPROVED"
	WorkflowStatusRejected   WorkflowStatus = "REJECTED"
	WorkflowStatusCancelled  WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusApproved, WorkflowStatusRejected, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus is the status of one approver's slot
type StepStatus string

const (
	StepStatusPending  StepStatus = "PENDING"
	StepStatusApproved StepStatus = "APPROVED"
	StepStatusRejected StepStatus = "REJECTED"
	StepStatusSkipped  StepStatus = "SKIPPED"
)

// ActionType identifies an audit record kind
type ActionType string

const (
	ActionApprove        ActionType = "APPROVE"
	ActionReject         ActionType = "REJECT"
	ActionRequestChanges ActionType = "REQUEST_CHANGES"
	ActionComment        ActionType = "COMMENT"
)

// IsDecision reports whether the action is one of the recordDecision variants
func (a ActionType) IsDecision() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRequestChanges:
		return true
	default:
		return false
	}
}

// RequiresComment reports whether a non-blank comment is mandatory
func (a ActionType) RequiresComment() bool {
	return a != ActionApprove
}

// IsValid checks if the action type is one of the defined constants
func (a ActionType) IsValid() bool {
	return a.IsDecision() || a == ActionComment
}

// Role is an actor's role claim
type Role string

const (
	RoleSuperAdmin    Role = "SUPER_ADMIN"
	RoleOrgAdmin      Role = "ORG_ADMIN"
	RoleHRManager     Role = "HR_MANAGER"
	RoleHiringManager Role = "HIRING_MANAGER"
	RoleEmployee      Role = "EMPLOYEE"
)

// IsValid checks if the role is one of the defined constants
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrgAdmin, RoleHRManager, RoleHiringManager, RoleEmployee:
		return true
	default:
		return false
	}
}

// DocumentStatus is the status field of a job description
type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "DRAFT"
	DocumentStatusInReview  DocumentStatus = "IN_REVIEW"
	DocumentStatusApproved  DocumentStatus = "APPROVED"
	DocumentStatusPublished DocumentStatus = "PUBLISHED"
	DocumentStatusArchived  DocumentStatus = "ARCHIVED"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
	NotificationStatusSkipped = "SKIPPED"
)

// Notification kind constants
const (
	NotificationKindStepAssigned = "STEP_ASSIGNED"
	NotificationKindApproved     = "WORKFLOW_APPROVED"
	NotificationKindRejected     = "WORKFLOW_REJECTED"
	NotificationKindChanges      = "CHANGES_REQUESTED"
	NotificationKindCancelled    = "WORKFLOW_CANCELLED"
	NotificationKindOverdue      = "STEP_OVERDUE"
)
