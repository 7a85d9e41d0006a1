package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTerminalState is returned when a trigger is fired from a final state
	ErrTerminalState = errors.New("state is terminal")

	// ErrGuardFailed is returned when every guarded transition rejected the trigger
	ErrGuardFailed = errors.New("guard condition failed")
)
