package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowCreated   Type = "workflow.created"
	TypeWorkflowAction    Type = "workflow.action"
	TypeWorkflowCancelled Type = "workflow.cancelled"
	TypeStepOverdue       Type = "step.overdue"
)

// Payload keys shared by producers and subscribers
const (
	KeyAction      = "action"
	KeyNewStatus   = "newStatus"
	KeyActorID     = "actorId"
	KeyComment     = "comment"
	KeyStepOrder   = "stepOrder"
	KeyApproverID  = "approverId"
	KeyApproverIDs = "approverIds"
	KeyNextActorID = "nextApproverId"
	KeyReason      = "reason"
	KeyDueDate     = "dueDate"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowCreated,
		TypeWorkflowAction,
		TypeWorkflowCancelled,
		TypeStepOverdue:
		return true
	default:
		return false
	}
}
