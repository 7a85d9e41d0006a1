package entity

import "time"

// Notification is the delivery record of one message about a workflow
type Notification struct {
	ID           int64      `json:"id"`
	WorkflowID   string     `json:"workflowId"`
	RecipientID  string     `json:"recipientId"`
	Kind         string     `json:"kind"`
	Channel      string     `json:"channel"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
}
