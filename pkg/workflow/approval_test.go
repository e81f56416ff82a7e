package workflow

import (
	"errors"
	"testing"

	"github.com/kadirpekel/tabula/pkg/intent"
)

func TestProcessApproval(t *testing.T) {
	tests := []struct {
		decision intent.Intent
		approved bool
		newState State
	}{
		{intent.IntentApprove, true, StateImplementing},
		{intent.IntentRevise, false, StatePlanDrafted},
		{intent.IntentDeny, false, StatePlanDrafted},
		{intent.IntentAsk, false, StateAwaitingPlan},
	}

	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			m := NewMachine(StateAwaitingPlan)
			got, err := m.ProcessApproval(tt.decision)
			if err != nil {
				t.Fatalf("ProcessApproval() error = %v", err)
			}
			if got.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", got.Approved, tt.approved)
			}
			if got.NewState != tt.newState {
				t.Errorf("NewState = %s, want %s", got.NewState, tt.newState)
			}
		})
	}
}

func TestProcessApproval_WrongState(t *testing.T) {
	m := NewMachine(StateImplementing)
	_, err := m.ProcessApproval(intent.IntentApprove)
	if !errors.Is(err, ErrNotAwaitingApproval) {
		t.Errorf("error = %v, want ErrNotAwaitingApproval", err)
	}
	if m.Current() != StateImplementing {
		t.Error("state mutated by refused approval")
	}
}

func TestProcessNaturalLanguageApproval(t *testing.T) {
	classifier := intent.NewClassifier(intent.DefaultConfig())

	tests := []struct {
		name     string
		text     string
		action   NLAction
		approved bool
		newState State
	}{
		{
			name:     "bilingual high-confidence approve",
			text:     "onayla, basla",
			action:   NLDirectApply,
			approved: true,
			newState: StateImplementing,
		},
		{
			name:     "high-confidence deny",
			text:     "hayır, iptal et",
			action:   NLDirectApply,
			approved: false,
			newState: StatePlanDrafted,
		},
		{
			name:     "conflicting intents stay put",
			text:     "approve, but revise milestone 2",
			action:   NLNoChange,
			approved: false,
			newState: StateAwaitingPlan,
		},
		{
			name:     "mid confidence asks for confirmation",
			text:     "go ahead and proceed, why not",
			action:   NLConfirm,
			approved: false,
			newState: StateAwaitingPlan,
		},
		{
			name:     "no signal",
			text:     "the weather is nice today",
			action:   NLNoChange,
			approved: false,
			newState: StateAwaitingPlan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(StateAwaitingPlan)
			got, err := m.ProcessNaturalLanguageApproval(classifier, tt.text)
			if err != nil {
				t.Fatalf("ProcessNaturalLanguageApproval() error = %v", err)
			}
			if got.Action != tt.action {
				t.Errorf("Action = %s, want %s (confidence %v)", got.Action, tt.action, got.Confidence)
			}
			if got.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", got.Approved, tt.approved)
			}
			if m.Current() != tt.newState {
				t.Errorf("state = %s, want %s", m.Current(), tt.newState)
			}
		})
	}
}

func TestExplicitApprovalOverridesLowConfidence(t *testing.T) {
	// A plan that classified poorly is still approvable by explicit command.
	m := NewMachine(StateAwaitingPlan)
	got, err := m.ProcessApproval(intent.IntentApprove)
	if err != nil {
		t.Fatalf("ProcessApproval() error = %v", err)
	}
	if !got.Approved || got.NewState != StateImplementing {
		t.Errorf("got %+v, want approved in IMPLEMENTING", got)
	}
}
