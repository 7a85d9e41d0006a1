package presence

import (
	"context"

	"github.com/garyjia/jd-approval/internal/domain/event"
)

// EventBridge forwards committed workflow events to presence rooms
type EventBridge struct {
	hub *Hub
}

// NewEventBridge creates a bridge publishing into hub
func NewEventBridge(hub *Hub) *EventBridge {
	return &EventBridge{hub: hub}
}

// HandleEvent publishes evt to the document room and to the private rooms
// of the actors it concerns. It is a dispatcher.Handler.
func (b *EventBridge) HandleEvent(ctx context.Context, evt *event.Event) error {
	msgType, ok := messageTypes[evt.Type]
	if !ok {
		return nil
	}

	payload := map[string]interface{}{
		"workflowId": evt.WorkflowID,
		"documentId": evt.DocumentID,
		"timestamp":  evt.Timestamp,
	}
	for k, v := range evt.Payload {
		payload[k] = v
	}
	msg := Message{Type: msgType, Payload: payload}

	b.hub.Publish(DocumentRoom(evt.DocumentID), msg)
	for _, actorID := range recipients(evt) {
		b.hub.Publish(UserRoom(actorID), msg)
	}
	return nil
}

var messageTypes = map[event.Type]string{
	event.TypeWorkflowCreated:   TypeWorkflowCreated,
	event.TypeWorkflowAction:    TypeWorkflowAction,
	event.TypeWorkflowCancelled: TypeWorkflowCancelled,
	event.TypeStepOverdue:       TypeStepOverdue,
}

// recipients lists actors that get the event in their private room
func recipients(evt *event.Event) []string {
	var ids []string
	switch evt.Type {
	case event.TypeWorkflowCreated, event.TypeStepOverdue:
		ids = append(ids, evt.GetPayloadString(event.KeyApproverID))
	case event.TypeWorkflowAction:
		ids = append(ids, evt.GetPayloadString(event.KeyNextActorID))
	}

	out := ids[:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
