package entity

import (
	"sort"
	"time"
)

// Workflow is one approval pipeline attached to a document.
// It exclusively owns its Steps and their Actions.
type Workflow struct {
	ID               string         `json:"id"`
	DocumentID       string         `json:"documentId"`
	OrganizationID   string         `json:"organizationId"`
	CreatedBy        string         `json:"createdBy"`
	Status           WorkflowStatus `json:"status"`
	CurrentStepOrder int            `json:"currentStepOrder"`
	Steps            []*Step        `json:"steps"`
	CancelReason     string         `json:"cancelReason,omitempty"`
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// Step is one approver's slot in a workflow, fixed order
type Step struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflowId"`
	Order      int        `json:"order"`
	ApproverID string     `json:"approverId"`
	Status     StepStatus `json:"status"`
	Actions    []*Action  `json:"actions"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	RemindedAt *time.Time `json:"remindedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Action is an immutable audit record of a single decision or comment
type Action struct {
	ID         string     `json:"id"`
	StepID     string     `json:"stepId"`
	WorkflowID string     `json:"workflowId"`
	Action     ActionType `json:"action"`
	Comment    string     `json:"comment,omitempty"`
	ActorID    string     `json:"actorId"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// IsTerminal reports whether the workflow reached a final status
func (w *Workflow) IsTerminal() bool {
	return w.Status.IsTerminal()
}

// StepByOrder returns the step with the given 1-based order, nil if absent
func (w *Workflow) StepByOrder(order int) *Step {
	for _, s := range w.Steps {
		if s.Order == order {
			return s
		}
	}
	return nil
}

// CurrentStep returns the step at CurrentStepOrder, nil if absent
func (w *Workflow) CurrentStep() *Step {
	return w.StepByOrder(w.CurrentStepOrder)
}

// IsLastStep reports whether the current step is the final one
func (w *Workflow) IsLastStep() bool {
	return w.CurrentStepOrder >= len(w.Steps)
}

// HasApprover reports whether actorID holds any step
func (w *Workflow) HasApprover(actorID string) bool {
	for _, s := range w.Steps {
		if s.ApproverID == actorID {
			return true
		}
	}
	return false
}

// IsAwaiting reports whether actorID owns the pending current step
func (w *Workflow) IsAwaiting(actorID string) bool {
	if w.IsTerminal() {
		return false
	}
	step := w.CurrentStep()
	return step != nil && step.ApproverID == actorID && step.Status == StepStatusPending
}

// History returns every action of every step ordered by creation time
func (w *Workflow) History() []*Action {
	var all []*Action
	for _, s := range w.Steps {
		all = append(all, s.Actions...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}
