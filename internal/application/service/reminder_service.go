package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/jd-approval/internal/application/dispatcher"
	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/event"
)

// ReminderService raises StepOverdue for current steps past their due date.
// Due dates are advisory: nothing else happens to an overdue step.
type ReminderService interface {
	// SendDueReminders returns the number of reminders raised
	SendDueReminders(ctx context.Context) (int, error)
}

type reminderServiceImpl struct {
	workflowRepo port.WorkflowRepository
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	now          func() time.Time
	logger       Logger
}

// NewReminderService creates a new ReminderService
func NewReminderService(
	workflowRepo port.WorkflowRepository,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) ReminderService {
	return &reminderServiceImpl{
		workflowRepo: workflowRepo,
		txManager:    txManager,
		dispatcher:   d,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// SendDueReminders marks each overdue step reminded before raising its
// event, so a step is reminded at most once
func (s *reminderServiceImpl) SendDueReminders(ctx context.Context) (int, error) {
	now := s.now()

	var due []*port.OverdueStep
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		steps, err := s.workflowRepo.ListOverdueSteps(txCtx, now)
		if err != nil {
			return err
		}
		for _, step := range steps {
			if err := s.workflowRepo.MarkReminded(txCtx, step.StepID, now); err != nil {
				return fmt.Errorf("mark step %s reminded: %w", step.StepID, err)
			}
		}
		due = steps
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to collect overdue steps", "error", err)
		return 0, err
	}

	for _, step := range due {
		evt := event.NewEvent(event.TypeStepOverdue, step.WorkflowID, step.DocumentID, map[string]interface{}{
			event.KeyApproverID: step.ApproverID,
			event.KeyStepOrder:  step.StepOrder,
			event.KeyDueDate:    step.DueDate.Format(time.RFC3339),
		})
		s.dispatcher.DispatchAsync(ctx, evt.InOrganization(step.OrganizationID))
	}

	if len(due) > 0 {
		s.logger.Info("Overdue reminders raised", "count", len(due))
	}
	return len(due), nil
}
