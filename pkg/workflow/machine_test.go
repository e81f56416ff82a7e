package workflow

import (
	"testing"
)

func TestMachine_LegalTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StatePRDIntake, StatePRDClarifying, true},
		{StatePRDIntake, StatePlanDrafted, true},
		{StatePRDIntake, StateImplementing, false},
		{StatePRDClarifying, StatePRDClarifying, true},
		{StatePRDClarifying, StatePlanDrafted, true},
		{StatePlanDrafted, StateAwaitingPlan, true},
		{StatePlanDrafted, StateImplementing, false},
		{StateAwaitingPlan, StateImplementing, true},
		{StateAwaitingPlan, StatePlanDrafted, true},
		{StateAwaitingPlan, StatePRDClarifying, true},
		{StateImplementing, StateQA, true},
		{StateImplementing, StateImplementing, true},
		{StateImplementing, StateDone, false},
		{StateQA, StateReview, true},
		{StateQA, StateImplementing, true},
		{StateQA, StateDone, false},
		{StateReview, StateRefactor, true},
		{StateReview, StateDone, true},
		{StateReview, StateImplementing, true},
		{StateRefactor, StateDone, true},
		{StateRefactor, StateImplementing, true},
		{StateDone, StatePRDIntake, true},
		{StateDone, StateImplementing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(tt.from)
			got := m.Transition(tt.to, "test")
			if got != tt.ok {
				t.Errorf("Transition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
			if tt.ok && m.Current() != tt.to {
				t.Errorf("Current() = %s, want %s", m.Current(), tt.to)
			}
			if !tt.ok && m.Current() != tt.from {
				t.Errorf("refused transition mutated state: %s", m.Current())
			}
		})
	}
}

func TestMachine_TransitionHook(t *testing.T) {
	m := NewMachine(StateImplementing)

	var gotFrom, gotTo State
	var gotForced bool
	m.OnTransition(func(from, to State, reason string, forced bool) {
		gotFrom, gotTo, gotForced = from, to, forced
	})

	if !m.Transition(StateQA, "build complete") {
		t.Fatal("expected legal transition")
	}
	if gotFrom != StateImplementing || gotTo != StateQA || gotForced {
		t.Errorf("hook saw %s -> %s forced=%v", gotFrom, gotTo, gotForced)
	}

	// A refused transition must not fire the hook.
	gotFrom, gotTo = "", ""
	if m.Transition(StateDone, "skip") {
		t.Fatal("QA -> DONE should be illegal")
	}
	if gotFrom != "" || gotTo != "" {
		t.Error("hook fired for refused transition")
	}
}

func TestMachine_ForceTransition(t *testing.T) {
	m := NewMachine(StatePRDIntake)

	var forced bool
	m.OnTransition(func(_, _ State, _ string, f bool) { forced = f })

	m.ForceTransition(StateQA, "checkpoint restore")
	if m.Current() != StateQA {
		t.Errorf("Current() = %s, want QA", m.Current())
	}
	if !forced {
		t.Error("hook should see forced=true")
	}

	m.ForceTransition("NOT_A_STATE", "bogus")
	if m.Current() != StateQA {
		t.Error("force to unknown state must be refused")
	}
}

func TestAuthorityPredicates(t *testing.T) {
	tests := []struct {
		state         State
		writeBlocked  bool
		readOnly      bool
		fullAuthority bool
		testAllowed   bool
	}{
		{StatePRDIntake, true, false, false, false},
		{StatePRDClarifying, true, false, false, false},
		{StatePlanDrafted, true, false, false, false},
		{StateAwaitingPlan, true, false, false, false},
		{StateImplementing, false, false, true, true},
		{StateQA, false, false, false, true},
		{StateReview, false, true, false, false},
		{StateRefactor, false, false, true, true},
		{StateDone, false, true, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.WriteBlocked(); got != tt.writeBlocked {
				t.Errorf("WriteBlocked() = %v, want %v", got, tt.writeBlocked)
			}
			if got := tt.state.ReadOnly(); got != tt.readOnly {
				t.Errorf("ReadOnly() = %v, want %v", got, tt.readOnly)
			}
			if got := tt.state.FullAuthority(); got != tt.fullAuthority {
				t.Errorf("FullAuthority() = %v, want %v", got, tt.fullAuthority)
			}
			if got := tt.state.TestAllowed(); got != tt.testAllowed {
				t.Errorf("TestAllowed() = %v, want %v", got, tt.testAllowed)
			}
		})
	}
}
