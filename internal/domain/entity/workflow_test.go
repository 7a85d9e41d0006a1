package entity

import (
	"testing"
	"time"
)

func newTwoStepWorkflow() *Workflow {
	return &Workflow{
		ID:               "wf-1",
		Status:           WorkflowStatusInProgress,
		CurrentStepOrder: 1,
		Steps: []*Step{
			{ID: "s1", Order: 1, ApproverID: "alice", Status: StepStatusPending},
			{ID: "s2", Order: 2, ApproverID: "bob", Status: StepStatusPending},
		},
	}
}

func TestWorkflowStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status WorkflowStatus
		want   bool
	}{
		{WorkflowStatusPending, false},
		{WorkflowStatusInProgress, false},
		{WorkflowStatusApproved, true},
		{WorkflowStatusRejected, true},
		{WorkflowStatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestActionTypeRules(t *testing.T) {
	if ActionApprove.RequiresComment() {
		t.Error("APPROVE must not require a comment")
	}
	for _, a := range []ActionType{ActionReject, ActionRequestChanges, ActionComment} {
		if !a.RequiresComment() {
			t.Errorf("%s must require a comment", a)
		}
	}
	if ActionComment.IsDecision() {
		t.Error("COMMENT is not a decision")
	}
	if ActionType("ESCALATE").IsValid() {
		t.Error("unknown action must be invalid")
	}
}

func TestWorkflowCurrentStep(t *testing.T) {
	wf := newTwoStepWorkflow()

	if step := wf.CurrentStep(); step == nil || step.ApproverID != "alice" {
		t.Fatalf("expected alice's step to be current, got %+v", step)
	}
	if wf.IsLastStep() {
		t.Error("step 1 of 2 is not the last step")
	}
	if !wf.IsAwaiting("alice") || wf.IsAwaiting("bob") {
		t.Error("only alice should be awaited")
	}

	wf.CurrentStepOrder = 2
	if !wf.IsLastStep() {
		t.Error("step 2 of 2 is the last step")
	}

	wf.Status = WorkflowStatusApproved
	if wf.IsAwaiting("bob") {
		t.Error("terminal workflows await nobody")
	}

	wf.CurrentStepOrder = 3
	if wf.CurrentStep() != nil {
		t.Error("out of range order must yield nil")
	}
}

func TestWorkflowHistoryOrdersByCreatedAt(t *testing.T) {
	wf := newTwoStepWorkflow()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	wf.Steps[0].Actions = []*Action{
		{ID: "a1", Action: ActionRequestChanges, CreatedAt: base},
		{ID: "a3", Action: ActionApprove, CreatedAt: base.Add(2 * time.Hour)},
	}
	wf.Steps[1].Actions = []*Action{
		{ID: "a2", Action: ActionComment, CreatedAt: base.Add(time.Hour)},
	}

	history := wf.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(history))
	}
	for i, want := range []string{"a1", "a2", "a3"} {
		if history[i].ID != want {
			t.Errorf("history[%d] = %s, want %s", i, history[i].ID, want)
		}
	}
}

func TestActorIdentity(t *testing.T) {
	a := &Actor{ID: "u1", FirstName: "Ada", LastName: "Lovelace", Role: RoleHRManager, OrganizationID: "org-1"}
	id := a.Identity()

	if id.DisplayName != "Ada Lovelace" || id.Role != RoleHRManager || id.OrganizationID != "org-1" {
		t.Errorf("unexpected identity: %+v", id)
	}
	if !RoleOrgAdmin.IsValid() || Role("ROOT").IsValid() {
		t.Error("role validation is wrong")
	}
}
