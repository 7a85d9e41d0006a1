package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/domain/event"
	"github.com/garyjia/jd-approval/pkg/apperrors"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockWorkflowRepo struct {
	port.WorkflowRepository
	getByIDFunc      func(ctx context.Context, id string) (*entity.Workflow, error)
	listOverdueFunc  func(ctx context.Context, now time.Time) ([]*port.OverdueStep, error)
	markRemindedFunc func(ctx context.Context, stepID string, at time.Time) error
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockWorkflowRepo) ListOverdueSteps(ctx context.Context, now time.Time) ([]*port.OverdueStep, error) {
	return m.listOverdueFunc(ctx, now)
}

func (m *mockWorkflowRepo) MarkReminded(ctx context.Context, stepID string, at time.Time) error {
	if m.markRemindedFunc != nil {
		return m.markRemindedFunc(ctx, stepID, at)
	}
	return nil
}

type mockDocumentRepo struct {
	port.DocumentRepository
	docs map[string]*entity.Document
}

func (m *mockDocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	return m.docs[id], nil
}

type mockIdentities map[string]*entity.Identity

func (m mockIdentities) Resolve(ctx context.Context, actorID string) (*entity.Identity, error) {
	if id, ok := m[actorID]; ok {
		return id, nil
	}
	return nil, apperrors.NewNotFoundError("actor", actorID)
}

type mockNotificationRepo struct {
	created  []*entity.Notification
	statuses map[int64]string
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{statuses: make(map[int64]string)}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	n.ID = int64(len(m.created) + 1)
	m.created = append(m.created, n)
	m.statuses[n.ID] = n.Status
	return nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64) error {
	m.statuses[id] = entity.NotificationStatusSent
	return nil
}

func (m *mockNotificationRepo) UpdateStatus(ctx context.Context, id int64, status string, errorMsg string) error {
	m.statuses[id] = status
	return nil
}

func (m *mockNotificationRepo) ListByWorkflowID(ctx context.Context, workflowID string) ([]*entity.Notification, error) {
	return m.created, nil
}

type sentMessage struct {
	openID string
	text   string
}

type mockMessageSender struct {
	sent         []sentMessage
	sendTextFunc func(ctx context.Context, openID, text string) error
}

func (m *mockMessageSender) SendText(ctx context.Context, openID, text string) error {
	if m.sendTextFunc != nil {
		if err := m.sendTextFunc(ctx, openID, text); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, sentMessage{openID: openID, text: text})
	return nil
}

func notificationFixture() (*entity.Workflow, mockIdentities, *mockDocumentRepo) {
	wf := &entity.Workflow{
		ID:               "wf-1",
		DocumentID:       "doc-1",
		CreatedBy:        "owner",
		Status:           entity.WorkflowStatusInProgress,
		CurrentStepOrder: 2,
		Steps: []*entity.Step{
			{Order: 1, ApproverID: "alice", Status: entity.StepStatusApproved},
			{Order: 2, ApproverID: "bob", Status: entity.StepStatusPending},
		},
	}
	identities := mockIdentities{
		"owner": {ActorID: "owner", LarkOpenID: "ou_owner"},
		"alice": {ActorID: "alice", LarkOpenID: "ou_alice"},
		"bob":   {ActorID: "bob", LarkOpenID: "ou_bob"},
		"carol": {ActorID: "carol"},
	}
	docs := &mockDocumentRepo{docs: map[string]*entity.Document{
		"doc-1": {ID: "doc-1", Title: "Senior Go Engineer"},
	}}
	return wf, identities, docs
}

func newTestNotificationService(wf *entity.Workflow, ids mockIdentities, docs *mockDocumentRepo, repo *mockNotificationRepo, sender *mockMessageSender) NotificationService {
	workflows := &mockWorkflowRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Workflow, error) {
			if id == wf.ID {
				return wf, nil
			}
			return nil, nil
		},
	}
	return NewNotificationService(workflows, docs, ids, repo, sender, "lark", nopLogger{})
}

func TestNotificationService_StepAssigned(t *testing.T) {
	wf, ids, docs := notificationFixture()
	repo := newMockNotificationRepo()
	sender := &mockMessageSender{}
	svc := newTestNotificationService(wf, ids, docs, repo, sender)

	evt := event.NewEvent(event.TypeWorkflowAction, "wf-1", "doc-1", map[string]interface{}{
		event.KeyAction:      string(entity.ActionApprove),
		event.KeyActorID:     "alice",
		event.KeyNewStatus:   string(entity.WorkflowStatusInProgress),
		event.KeyStepOrder:   1,
		event.KeyNextActorID: "bob",
	})

	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0].openID != "ou_bob" {
		t.Fatalf("sent = %+v, want one message to ou_bob", sender.sent)
	}
	if !strings.Contains(sender.sent[0].text, "Senior Go Engineer") || !strings.Contains(sender.sent[0].text, "step 2") {
		t.Errorf("text = %q", sender.sent[0].text)
	}
	if repo.created[0].Kind != entity.NotificationKindStepAssigned || repo.statuses[1] != entity.NotificationStatusSent {
		t.Errorf("record = %+v status=%s", repo.created[0], repo.statuses[1])
	}
	if repo.created[0].Channel != "lark" {
		t.Errorf("channel = %q", repo.created[0].Channel)
	}
}

func TestNotificationService_OutcomesGoToCreator(t *testing.T) {
	tests := []struct {
		name     string
		action   entity.ActionType
		status   entity.WorkflowStatus
		wantKind string
	}{
		{"final approve", entity.ActionApprove, entity.WorkflowStatusApproved, entity.NotificationKindApproved},
		{"reject", entity.ActionReject, entity.WorkflowStatusRejected, entity.NotificationKindRejected},
		{"request changes", entity.ActionRequestChanges, entity.WorkflowStatusInProgress, entity.NotificationKindChanges},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, ids, docs := notificationFixture()
			repo := newMockNotificationRepo()
			sender := &mockMessageSender{}
			svc := newTestNotificationService(wf, ids, docs, repo, sender)

			evt := event.NewEvent(event.TypeWorkflowAction, "wf-1", "doc-1", map[string]interface{}{
				event.KeyAction:    string(tt.action),
				event.KeyActorID:   "bob",
				event.KeyNewStatus: string(tt.status),
				event.KeyComment:   "see notes",
			})
			if err := svc.HandleEvent(context.Background(), evt); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}

			if len(sender.sent) != 1 || sender.sent[0].openID != "ou_owner" {
				t.Fatalf("sent = %+v", sender.sent)
			}
			if repo.created[0].Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", repo.created[0].Kind, tt.wantKind)
			}
		})
	}
}

func TestNotificationService_CommentsAreSilent(t *testing.T) {
	wf, ids, docs := notificationFixture()
	repo := newMockNotificationRepo()
	sender := &mockMessageSender{}
	svc := newTestNotificationService(wf, ids, docs, repo, sender)

	evt := event.NewEvent(event.TypeWorkflowAction, "wf-1", "doc-1", map[string]interface{}{
		event.KeyAction:  string(entity.ActionComment),
		event.KeyActorID: "owner",
	})
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if len(sender.sent) != 0 || len(repo.created) != 0 {
		t.Errorf("comment produced %d messages", len(sender.sent))
	}
}

func TestNotificationService_CancelNotifiesCreatorAndCurrentApprover(t *testing.T) {
	wf, ids, docs := notificationFixture()
	repo := newMockNotificationRepo()
	sender := &mockMessageSender{}
	svc := newTestNotificationService(wf, ids, docs, repo, sender)

	evt := event.NewEvent(event.TypeWorkflowCancelled, "wf-1", "doc-1", map[string]interface{}{
		event.KeyActorID: "owner",
		event.KeyReason:  "budget cut",
	})
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	// the creator cancelled, so only bob hears about it
	if len(sender.sent) != 1 || sender.sent[0].openID != "ou_bob" {
		t.Fatalf("sent = %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].text, "budget cut") {
		t.Errorf("text = %q", sender.sent[0].text)
	}
}

func TestNotificationService_SkipsRecipientsWithoutAccount(t *testing.T) {
	wf, ids, docs := notificationFixture()
	repo := newMockNotificationRepo()
	sender := &mockMessageSender{}
	svc := newTestNotificationService(wf, ids, docs, repo, sender)

	evt := event.NewEvent(event.TypeWorkflowCreated, "wf-1", "doc-1", map[string]interface{}{
		event.KeyActorID:    "owner",
		event.KeyApproverID: "carol",
	})
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent = %+v", sender.sent)
	}
	if repo.statuses[1] != entity.NotificationStatusSkipped {
		t.Errorf("status = %s, want SKIPPED", repo.statuses[1])
	}
}

func TestNotificationService_SendFailureIsRecorded(t *testing.T) {
	wf, ids, docs := notificationFixture()
	repo := newMockNotificationRepo()
	sender := &mockMessageSender{
		sendTextFunc: func(ctx context.Context, openID, text string) error {
			return errors.New("rate limited")
		},
	}
	svc := newTestNotificationService(wf, ids, docs, repo, sender)

	evt := event.NewEvent(event.TypeStepOverdue, "wf-1", "doc-1", map[string]interface{}{
		event.KeyApproverID: "bob",
		event.KeyStepOrder:  2,
		event.KeyDueDate:    "2026-03-04T09:00:00Z",
	})
	err := svc.HandleEvent(context.Background(), evt)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("HandleEvent() error = %v, want send failure", err)
	}
	if repo.statuses[1] != entity.NotificationStatusFailed {
		t.Errorf("status = %s, want FAILED", repo.statuses[1])
	}
}

func TestNotificationService_UnknownWorkflowIsIgnored(t *testing.T) {
	wf, ids, docs := notificationFixture()
	sender := &mockMessageSender{}
	svc := newTestNotificationService(wf, ids, docs, newMockNotificationRepo(), sender)

	evt := event.NewEvent(event.TypeWorkflowCreated, "wf-gone", "doc-1", nil)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Errorf("HandleEvent() error = %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("sent a message for an unknown workflow")
	}
}
