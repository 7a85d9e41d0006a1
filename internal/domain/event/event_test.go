package event

import (
	"encoding/json"
	"testing"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"workflow created", TypeWorkflowCreated, true},
		{"workflow action", TypeWorkflowAction, true},
		{"workflow cancelled", TypeWorkflowCancelled, true},
		{"step overdue", TypeStepOverdue, true},
		{"unknown", Type("instance.created"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypeWorkflowAction, "wf-1", "doc-1", map[string]interface{}{KeyAction: "APPROVE"})

	if e.ID == "" {
		t.Error("NewEvent() ID is empty")
	}
	if e.CorrelationID != e.ID {
		t.Errorf("CorrelationID = %v, want %v", e.CorrelationID, e.ID)
	}
	if e.WorkflowID != "wf-1" || e.DocumentID != "doc-1" {
		t.Errorf("NewEvent() ids = %v/%v", e.WorkflowID, e.DocumentID)
	}
	if e.Timestamp.IsZero() {
		t.Error("NewEvent() Timestamp is zero")
	}
	if got := e.GetPayloadString(KeyAction); got != "APPROVE" {
		t.Errorf("GetPayloadString() = %v", got)
	}

	if NewEvent(TypeWorkflowCreated, "wf-1", "doc-1", nil).Payload == nil {
		t.Error("NewEvent() with nil payload left Payload nil")
	}
}

func TestEvent_CopiesDoNotShareState(t *testing.T) {
	original := NewEvent(TypeWorkflowCreated, "wf-1", "doc-1", map[string]interface{}{"a": 1})

	withB := original.WithPayload("b", 2)
	scoped := original.InOrganization("org-1")
	correlated := original.WithCorrelation("corr-1")

	if _, ok := original.Payload["b"]; ok {
		t.Error("WithPayload() mutated the original payload")
	}
	if withB.GetPayloadInt("b") != 2 || withB.GetPayloadInt("a") != 1 {
		t.Errorf("WithPayload() payload = %v", withB.Payload)
	}
	if original.OrganizationID != "" || scoped.OrganizationID != "org-1" {
		t.Errorf("InOrganization() org = %q / %q", original.OrganizationID, scoped.OrganizationID)
	}
	if correlated.CorrelationID != "corr-1" || correlated.ID != original.ID {
		t.Errorf("WithCorrelation() = %+v", correlated)
	}
}

func TestEvent_PayloadAfterJSONRoundTrip(t *testing.T) {
	e := NewEvent(TypeWorkflowCreated, "wf-1", "doc-1", map[string]interface{}{
		KeyApproverIDs: []string{"u1", "u2"},
		KeyStepOrder:   1,
	})

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	ids := decoded.GetPayloadStrings(KeyApproverIDs)
	if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Errorf("GetPayloadStrings() = %v", ids)
	}
	if decoded.GetPayloadInt(KeyStepOrder) != 1 {
		t.Errorf("GetPayloadInt() = %v", decoded.GetPayloadInt(KeyStepOrder))
	}
	if decoded.GetPayloadString("missing") != "" {
		t.Error("GetPayloadString() on missing key should be empty")
	}
}
