package port

import (
	"context"

	"github.com/garyjia/jd-approval/internal/domain/entity"
)

// MessageSender delivers a plain-text direct message
type MessageSender interface {
	SendText(ctx context.Context, openID string, text string) error
}

// RoomPublisher fans a message out to every member of a presence room
type RoomPublisher interface {
	// Publish returns the number of members the message was queued for
	Publish(roomID string, message interface{}) int
}

// HistoryRenderer renders a workflow audit trail as a file
type HistoryRenderer interface {
	Render(wf *entity.Workflow, actorNames map[string]string) ([]byte, error)
	ContentType() string
	Extension() string
}
