package workflow

// Trigger represents an operation that can cause a state transition
type Trigger string

const (
	TriggerStart          Trigger = "START"
	TriggerApprove        Trigger = "APPROVE"
	TriggerReject         Trigger = "REJECT"
	TriggerRequestChanges Trigger = "REQUEST_CHANGES"
	TriggerComment        Trigger = "COMMENT"
	TriggerCancel         Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
