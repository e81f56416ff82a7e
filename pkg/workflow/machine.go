package workflow

import (
	"log/slog"
	"sync"
)

// TransitionHook observes successful transitions. The orchestrator uses it
// to emit state.transition events; hooks run inside the transition and must
// not call back into the machine.
type TransitionHook func(from, to State, reason string, forced bool)

// Machine holds the single workflow state of a run and enforces the legal
// transition set. Mutation happens only through Transition and
// ForceTransition.
type Machine struct {
	mu    sync.RWMutex
	state State
	hook  TransitionHook
}

// NewMachine creates a machine in the given initial state; an invalid
// initial state falls back to PRD_INTAKE.
func NewMachine(initial State) *Machine {
	if !initial.Valid() {
		initial = StatePRDIntake
	}
	return &Machine{state: initial}
}

// OnTransition registers the transition observer, replacing any previous one.
func (m *Machine) OnTransition(hook TransitionHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Current returns the state in effect.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves to target if the edge exists, returning false without
// mutation otherwise. No event is emitted for a refused transition.
func (m *Machine) Transition(target State, reason string) bool {
	m.mu.Lock()
	if !m.state.CanTransition(target) {
		current := m.state
		m.mu.Unlock()
		slog.Debug("illegal transition refused", "from", current, "to", target, "reason", reason)
		return false
	}
	from := m.state
	m.state = target
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(from, target, reason, false)
	}
	return true
}

// ForceTransition bypasses edge validation. Reserved for checkpoint restore;
// everything else goes through Transition.
func (m *Machine) ForceTransition(target State, reason string) {
	if !target.Valid() {
		slog.Warn("force transition to unknown state refused", "to", target)
		return
	}
	m.mu.Lock()
	from := m.state
	m.state = target
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(from, target, reason, true)
	}
}
