package workflow

import "context"

// Transition describes one fired trigger
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// IsSelf reports whether the transition kept the machine in the same state
func (t Transition) IsSelf() bool {
	return t.From == t.To
}

// StateMachine tracks the current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger would succeed now, guards included
	CanFire(ctx context.Context, trigger Trigger) bool

	// Fire executes the trigger and returns the transition taken
	Fire(ctx context.Context, trigger Trigger) (Transition, error)

	// PermittedTriggers returns the triggers configured for the current state
	PermittedTriggers() []Trigger
}
