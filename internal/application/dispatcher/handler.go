package dispatcher

import (
	"context"

	"github.com/garyjia/jd-approval/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type // empty for handlers subscribed to every type
	Handler   Handler
}

// matches reports whether the handler should receive events of type t
func (h HandlerInfo) matches(t event.Type) bool {
	return h.EventType == "" || h.EventType == t
}
