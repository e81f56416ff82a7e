// Package workflow implements the development workflow state machine: the
// legal transitions among planning, implementing, QA, review, and refactor
// states, and the tool authority each state confers.
package workflow

// State is the single-valued workflow state of a run.
type State string

const (
	StatePRDIntake         State = "PRD_INTAKE"
	StatePRDClarifying     State = "PRD_CLARIFYING"
	StatePlanDrafted       State = "PLAN_DRAFTED"
	StateAwaitingPlan      State = "AWAITING_PLAN_CONFIRMATION"
	StateImplementing      State = "IMPLEMENTING"
	StateQA                State = "QA"
	StateReview            State = "REVIEW"
	StateRefactor          State = "REFACTOR"
	StateDone              State = "DONE"
)

// legalTransitions is the directed edge set of the workflow graph.
var legalTransitions = map[State][]State{
	StatePRDIntake:     {StatePRDClarifying, StatePlanDrafted},
	StatePRDClarifying: {StatePlanDrafted, StatePRDClarifying},
	StatePlanDrafted:   {StateAwaitingPlan},
	StateAwaitingPlan:  {StateImplementing, StatePlanDrafted, StatePRDClarifying},
	StateImplementing:  {StateQA, StateImplementing},
	StateQA:            {StateReview, StateImplementing},
	StateReview:        {StateRefactor, StateDone, StateImplementing},
	StateRefactor:      {StateDone, StateImplementing},
	StateDone:          {StatePRDIntake},
}

// Valid reports whether s is a known workflow state.
func (s State) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// CanTransition reports whether the edge s → target exists.
func (s State) CanTransition(target State) bool {
	for _, next := range legalTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// LegalTargets returns the states reachable from s in one transition.
func (s State) LegalTargets() []State {
	targets := legalTransitions[s]
	out := make([]State, len(targets))
	copy(out, targets)
	return out
}

// WriteBlocked reports whether s is a planning-phase state where any tool
// operation other than read is blocked.
func (s State) WriteBlocked() bool {
	switch s {
	case StatePRDIntake, StatePRDClarifying, StatePlanDrafted, StateAwaitingPlan:
		return true
	}
	return false
}

// ReadOnly reports whether s allows only read operations.
func (s State) ReadOnly() bool {
	return s == StateReview || s == StateDone
}

// FullAuthority reports whether s allows every tool operation.
func (s State) FullAuthority() bool {
	return s == StateImplementing || s == StateRefactor
}

// TestAllowed reports whether test execution is permitted in s.
func (s State) TestAllowed() bool {
	return s == StateQA || s.FullAuthority()
}
