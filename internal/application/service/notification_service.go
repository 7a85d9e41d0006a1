package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NotificationService turns committed workflow events into direct messages
type NotificationService interface {
	// HandleEvent is subscribed to the dispatcher
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	workflowRepo     port.WorkflowRepository
	documentRepo     port.DocumentRepository
	identities       port.IdentityProvider
	notificationRepo port.NotificationRepository
	messageSender    port.MessageSender
	channel          string
	logger           Logger
}

// notice is one message to one actor
type notice struct {
	recipientID string
	kind        string
	text        string
}

// NewNotificationService creates a new NotificationService. channel names
// the delivery channel recorded with every notification.
func NewNotificationService(
	workflowRepo port.WorkflowRepository,
	documentRepo port.DocumentRepository,
	identities port.IdentityProvider,
	notificationRepo port.NotificationRepository,
	messageSender port.MessageSender,
	channel string,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		workflowRepo:     workflowRepo,
		documentRepo:     documentRepo,
		identities:       identities,
		notificationRepo: notificationRepo,
		messageSender:    messageSender,
		channel:          channel,
		logger:           logger,
	}
}

// HandleEvent delivers the notices an event implies. The actor who caused
// the event is never notified about it.
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	wf, err := s.workflowRepo.GetByID(ctx, evt.WorkflowID)
	if err != nil {
		return fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		s.logger.Error("Workflow of event not found", "workflow_id", evt.WorkflowID, "event_type", evt.Type)
		return nil
	}

	title := s.documentTitle(ctx, wf.DocumentID)
	notices := buildNotices(evt, wf, title)

	var errs []error
	for _, n := range notices {
		if n.recipientID == "" || n.recipientID == evt.GetPayloadString(event.KeyActorID) {
			continue
		}
		if err := s.deliver(ctx, wf.ID, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver records the attempt, sends it and stores the outcome
func (s *notificationServiceImpl) deliver(ctx context.Context, workflowID string, n notice) error {
	record := &entity.Notification{
		WorkflowID:  workflowID,
		RecipientID: n.recipientID,
		Kind:        n.kind,
		Channel:     s.channel,
		Status:      entity.NotificationStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.notificationRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	identity, err := s.identities.Resolve(ctx, n.recipientID)
	if err != nil || identity.LarkOpenID == "" {
		reason := "recipient has no messaging account"
		if err != nil {
			reason = err.Error()
		}
		s.logger.Info("Notification skipped", "recipient_id", n.recipientID, "kind", n.kind, "reason", reason)
		return s.notificationRepo.UpdateStatus(ctx, record.ID, entity.NotificationStatusSkipped, reason)
	}

	if err := s.messageSender.SendText(ctx, identity.LarkOpenID, n.text); err != nil {
		s.logger.Error("Failed to send notification",
			"error", err,
			"workflow_id", workflowID,
			"recipient_id", n.recipientID,
			"kind", n.kind,
		)
		if uerr := s.notificationRepo.UpdateStatus(ctx, record.ID, entity.NotificationStatusFailed, err.Error()); uerr != nil {
			s.logger.Error("Failed to record notification failure", "error", uerr, "notification_id", record.ID)
		}
		return fmt.Errorf("send %s to %s: %w", n.kind, n.recipientID, err)
	}

	if err := s.notificationRepo.MarkSent(ctx, record.ID); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}

	s.logger.Info("Notification sent",
		"workflow_id", workflowID,
		"notification_id", record.ID,
		"recipient_id", n.recipientID,
		"kind", n.kind,
	)
	return nil
}

func (s *notificationServiceImpl) documentTitle(ctx context.Context, documentID string) string {
	if s.documentRepo == nil {
		return documentID
	}
	doc, err := s.documentRepo.GetByID(ctx, documentID)
	if err != nil || doc == nil || doc.Title == "" {
		return documentID
	}
	return doc.Title
}

// buildNotices maps an event to the messages it implies
func buildNotices(evt *event.Event, wf *entity.Workflow, title string) []notice {
	switch evt.Type {
	case event.TypeWorkflowCreated:
		return []notice{assigned(evt.GetPayloadString(event.KeyApproverID), 1, title)}

	case event.TypeWorkflowAction:
		actor := evt.GetPayloadString(event.KeyActorID)
		comment := evt.GetPayloadString(event.KeyComment)

		switch entity.ActionType(evt.GetPayloadString(event.KeyAction)) {
		case entity.ActionApprove:
			if next := evt.GetPayloadString(event.KeyNextActorID); next != "" {
				return []notice{assigned(next, evt.GetPayloadInt(event.KeyStepOrder)+1, title)}
			}
			if entity.WorkflowStatus(evt.GetPayloadString(event.KeyNewStatus)) == entity.WorkflowStatusApproved {
				return []notice{{
					recipientID: wf.CreatedBy,
					kind:        entity.NotificationKindApproved,
					text:        fmt.Sprintf("\"%s\" was approved by every approver.", title),
				}}
			}
		case entity.ActionReject:
			return []notice{{
				recipientID: wf.CreatedBy,
				kind:        entity.NotificationKindRejected,
				text:        fmt.Sprintf("\"%s\" was rejected by %s: %s", title, actor, comment),
			}}
		case entity.ActionRequestChanges:
			return []notice{{
				recipientID: wf.CreatedBy,
				kind:        entity.NotificationKindChanges,
				text:        fmt.Sprintf("%s requested changes to \"%s\": %s", actor, title, comment),
			}}
		}
		return nil

	case event.TypeWorkflowCancelled:
		text := fmt.Sprintf("The approval of \"%s\" was cancelled.", title)
		if reason := evt.GetPayloadString(event.KeyReason); reason != "" {
			text = fmt.Sprintf("The approval of \"%s\" was cancelled: %s", title, reason)
		}
		notices := []notice{{recipientID: wf.CreatedBy, kind: entity.NotificationKindCancelled, text: text}}
		if step := wf.CurrentStep(); step != nil && step.Status == entity.StepStatusPending {
			notices = append(notices, notice{recipientID: step.ApproverID, kind: entity.NotificationKindCancelled, text: text})
		}
		return notices

	case event.TypeStepOverdue:
		return []notice{{
			recipientID: evt.GetPayloadString(event.KeyApproverID),
			kind:        entity.NotificationKindOverdue,
			text: fmt.Sprintf("Reminder: step %d of \"%s\" is waiting for your decision since %s.",
				evt.GetPayloadInt(event.KeyStepOrder), title, evt.GetPayloadString(event.KeyDueDate)),
		}}
	}
	return nil
}

func assigned(approverID string, order int, title string) notice {
	return notice{
		recipientID: approverID,
		kind:        entity.NotificationKindStepAssigned,
		text:        fmt.Sprintf("\"%s\" is waiting for your approval (step %d).", title, order),
	}
}
