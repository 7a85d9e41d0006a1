package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/jd-approval/internal/application/dispatcher"
	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/event"
)

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestReminderService_RaisesOverdueEvents(t *testing.T) {
	due := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	var reminded []string

	repo := &mockWorkflowRepo{
		listOverdueFunc: func(ctx context.Context, now time.Time) ([]*port.OverdueStep, error) {
			return []*port.OverdueStep{
				{WorkflowID: "wf-1", DocumentID: "doc-1", OrganizationID: "org-1", StepID: "s-2", StepOrder: 2, ApproverID: "bob", DueDate: due},
			}, nil
		},
		markRemindedFunc: func(ctx context.Context, stepID string, at time.Time) error {
			reminded = append(reminded, stepID)
			return nil
		},
	}

	d := dispatcher.NewDispatcher()
	var mu sync.Mutex
	var got []*event.Event
	d.Subscribe(event.TypeStepOverdue, "capture", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
		return nil
	})

	svc := NewReminderService(repo, passthroughTx{}, d, nopLogger{})
	n, err := svc.SendDueReminders(context.Background())
	if err != nil {
		t.Fatalf("SendDueReminders() error = %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if n != 1 || len(reminded) != 1 || reminded[0] != "s-2" {
		t.Errorf("n=%d reminded=%v", n, reminded)
	}
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	evt := got[0]
	if evt.OrganizationID != "org-1" || evt.GetPayloadString(event.KeyApproverID) != "bob" || evt.GetPayloadInt(event.KeyStepOrder) != 2 {
		t.Errorf("event = %+v", evt)
	}
	if evt.GetPayloadString(event.KeyDueDate) != "2026-03-04T09:00:00Z" {
		t.Errorf("due date = %q", evt.GetPayloadString(event.KeyDueDate))
	}
}

func TestReminderService_MarkFailureRaisesNothing(t *testing.T) {
	repo := &mockWorkflowRepo{
		listOverdueFunc: func(ctx context.Context, now time.Time) ([]*port.OverdueStep, error) {
			return []*port.OverdueStep{{WorkflowID: "wf-1", StepID: "s-1"}}, nil
		},
		markRemindedFunc: func(ctx context.Context, stepID string, at time.Time) error {
			return errors.New("database is locked")
		},
	}

	d := dispatcher.NewDispatcher()
	called := false
	d.SubscribeAll("capture", func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	svc := NewReminderService(repo, passthroughTx{}, d, nopLogger{})
	if _, err := svc.SendDueReminders(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	_ = d.Close(context.Background())
	if called {
		t.Error("event raised although the step was not marked")
	}
}
