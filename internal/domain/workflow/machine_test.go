package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateInProgress, false},
		{StateApproved, true},
		{StateRejected, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"in progress", StateInProgress, true},
		{"cancelled", StateCancelled, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrigger_String(t *testing.T) {
	if got := TriggerRequestChanges.String(); got != "REQUEST_CHANGES" {
		t.Errorf("Trigger.String() = %v, want %v", got, "REQUEST_CHANGES")
	}
}

func TestBuilder_ConfigureTerminalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Configure() on terminal state should panic")
		}
	}()
	NewBuilder().Configure(StateApproved)
}

func TestBuilder_ConfigureInvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Configure() on invalid state should panic")
		}
	}()
	NewBuilder().Configure(State("BOGUS"))
}

func TestStateMachine_Fire(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).
		Permit(TriggerStart, StateInProgress).
		Permit(TriggerCancel, StateCancelled)
	builder.Configure(StateInProgress).
		Permit(TriggerReject, StateRejected)

	sm := builder.Build(StatePending)
	ctx := context.Background()

	tr, err := sm.Fire(ctx, TriggerStart)
	if err != nil {
		t.Fatalf("Fire(START) error = %v", err)
	}
	if tr.From != StatePending || tr.To != StateInProgress || tr.Trigger != TriggerStart {
		t.Errorf("Fire(START) = %+v", tr)
	}
	if sm.State() != StateInProgress {
		t.Errorf("State() = %v, want %v", sm.State(), StateInProgress)
	}

	if _, err := sm.Fire(ctx, TriggerCancel); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire(CANCEL) from IN_PROGRESS error = %v, want ErrInvalidTransition", err)
	}

	if _, err := sm.Fire(ctx, TriggerReject); err != nil {
		t.Fatalf("Fire(REJECT) error = %v", err)
	}
	if _, err := sm.Fire(ctx, TriggerReject); !errors.Is(err, ErrTerminalState) {
		t.Errorf("Fire() from terminal error = %v, want ErrTerminalState", err)
	}
}

func TestStateMachine_GuardsTriedInOrder(t *testing.T) {
	last := false
	builder := NewBuilder()
	builder.Configure(StateInProgress).
		PermitIf(TriggerApprove, StateApproved, func(ctx context.Context) bool { return last }).
		PermitReentry(TriggerApprove)

	ctx := context.Background()

	sm := builder.Build(StateInProgress)
	tr, err := sm.Fire(ctx, TriggerApprove)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if !tr.IsSelf() {
		t.Errorf("expected self transition, got %+v", tr)
	}

	last = true
	tr, err = sm.Fire(ctx, TriggerApprove)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if tr.To != StateApproved {
		t.Errorf("Fire() to = %v, want %v", tr.To, StateApproved)
	}
}

func TestStateMachine_GuardFailed(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInProgress).
		PermitIf(TriggerComment, StateInProgress, func(ctx context.Context) bool { return false })

	sm := builder.Build(StateInProgress)
	if sm.CanFire(context.Background(), TriggerComment) {
		t.Error("CanFire() = true with failing guard")
	}
	if _, err := sm.Fire(context.Background(), TriggerComment); !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want ErrGuardFailed", err)
	}
	if sm.State() != StateInProgress {
		t.Errorf("state changed after failed guard: %v", sm.State())
	}
}

func TestStateMachine_BuildIsolatedFromBuilder(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInProgress).Permit(TriggerReject, StateRejected)
	sm := builder.Build(StateInProgress)

	builder.Configure(StateInProgress).Permit(TriggerCancel, StateCancelled)

	if sm.CanFire(context.Background(), TriggerCancel) {
		t.Error("machine picked up configuration added after Build()")
	}
}

func TestStateMachine_PermittedTriggersSorted(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateInProgress).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCancel, StateCancelled).
		PermitReentry(TriggerComment)

	got := builder.Build(StateInProgress).PermittedTriggers()
	want := []Trigger{TriggerCancel, TriggerComment, TriggerReject}
	if len(got) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if n := len(builder.Build(StateApproved).PermittedTriggers()); n != 0 {
		t.Errorf("terminal state permitted %d triggers", n)
	}
}
