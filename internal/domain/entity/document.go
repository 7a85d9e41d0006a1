package entity

import "time"

// Document is the job description a workflow reviews.
// The engine only reads and writes its status and lock.
type Document struct {
	ID               string         `json:"id"`
	OrganizationID   string         `json:"organizationId"`
	Title            string         `json:"title"`
	Status           DocumentStatus `json:"status"`
	ManagerID        string         `json:"managerId,omitempty"`
	ActiveWorkflowID string         `json:"activeWorkflowId,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// IsLocked reports whether a non-terminal workflow holds the document
func (d *Document) IsLocked() bool {
	return d.ActiveWorkflowID != ""
}
