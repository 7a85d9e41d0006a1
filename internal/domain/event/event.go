package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised after a workflow change commits
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	WorkflowID     string                 `json:"workflowId"`
	DocumentID     string                 `json:"documentId"`
	OrganizationID string                 `json:"organizationId,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
	Timestamp      time.Time              `json:"timestamp"`
	CorrelationID  string                 `json:"correlationId"`
}

// NewEvent creates a new domain event with generated ID and timestamp
func NewEvent(eventType Type, workflowID, documentID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            id,
		Type:          eventType,
		WorkflowID:    workflowID,
		DocumentID:    documentID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// InOrganization returns a copy scoped to an organization
func (e *Event) InOrganization(orgID string) *Event {
	c := e.clone()
	c.OrganizationID = orgID
	return c
}

// WithCorrelation returns a copy linked to an existing correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	c := e.clone()
	c.CorrelationID = correlationID
	return c
}

// WithPayload returns a copy with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	c := e.clone()
	c.Payload[key] = value
	return c
}

func (e *Event) clone() *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	c := *e
	c.Payload = payload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int value from the payload
func (e *Event) GetPayloadInt(key string) int {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

// GetPayloadStrings retrieves a string list from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
