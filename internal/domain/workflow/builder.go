package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc evaluates whether a transition should be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns the configuration of the given state
	Configure(state State) StateConfiguration

	// Build creates a state machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions out of one state
type StateConfiguration interface {
	// Permit allows a trigger to move to toState
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to move to toState when guard passes.
	// Guarded transitions of one trigger are tried in registration order.
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration

	// PermitReentry allows a trigger that keeps the current state
	PermitReentry(trigger Trigger) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger][]transition
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure panics on unknown states and on terminal states,
// which must never have outgoing transitions.
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state cannot have transitions: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Build copies the configuration so later builder changes do not leak
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	configs := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitions := make(map[Trigger][]transition, len(config.transitions))
		for trigger, ts := range config.transitions {
			transitions[trigger] = append([]transition{}, ts...)
		}
		configs[state] = &stateConfig{fromState: state, transitions: transitions}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configs,
	}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})
	return c
}

func (c *stateConfig) PermitReentry(trigger Trigger) StateConfiguration {
	return c.PermitIf(trigger, c.fromState, nil)
}

func (m *stateMachine) State() State {
	return m.currentState
}

func (m *stateMachine) CanFire(ctx context.Context, trigger Trigger) bool {
	_, ok := m.resolve(ctx, trigger)
	return ok
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) (Transition, error) {
	if m.currentState.IsTerminal() {
		return Transition{}, fmt.Errorf("%w: cannot fire %s from %s", ErrTerminalState, trigger, m.currentState)
	}

	config, exists := m.configurations[m.currentState]
	if !exists || len(config.transitions[trigger]) == 0 {
		return Transition{}, fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.currentState)
	}

	to, ok := m.resolve(ctx, trigger)
	if !ok {
		return Transition{}, fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.currentState)
	}

	t := Transition{From: m.currentState, To: to, Trigger: trigger}
	m.currentState = to
	return t, nil
}

// resolve picks the first transition whose guard passes
func (m *stateMachine) resolve(ctx context.Context, trigger Trigger) (State, bool) {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return "", false
	}
	for _, t := range config.transitions[trigger] {
		if t.guard == nil || t.guard(ctx) {
			return t.toState, true
		}
	}
	return "", false
}

// PermittedTriggers is sorted for stable output
func (m *stateMachine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
