package workflow

import (
	"errors"

	"github.com/kadirpekel/tabula/pkg/intent"
)

// ErrNotAwaitingApproval is returned when an approval decision arrives while
// the machine is not in AWAITING_PLAN_CONFIRMATION.
var ErrNotAwaitingApproval = errors.New("workflow is not awaiting plan confirmation")

// ApprovalResult reports how an explicit plan decision was applied.
type ApprovalResult struct {
	Approved bool          `json:"approved"`
	NewState State         `json:"newState"`
	Changed  bool          `json:"changed"`
	Intent   intent.Intent `json:"intent"`
}

// NLAction describes what a natural-language approval attempt did.
type NLAction string

const (
	// NLDirectApply means confidence cleared the approve threshold and the
	// decision was applied immediately.
	NLDirectApply NLAction = "direct_apply"
	// NLConfirm means confidence cleared only the confirm threshold; the
	// caller should prompt for explicit confirmation. No mutation happened.
	NLConfirm NLAction = "confirm"
	// NLNoChange means confidence was too low to act on.
	NLNoChange NLAction = "no_change"
)

// NLApprovalResult is the outcome of ProcessNaturalLanguageApproval.
type NLApprovalResult struct {
	Action     NLAction      `json:"action"`
	Intent     intent.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
	Approved   bool          `json:"approved"`
	NewState   State         `json:"newState"`
	Reasoning  string        `json:"reasoning,omitempty"`
}

// ProcessApproval applies an explicit plan decision. Explicit decisions
// always apply regardless of any prior classifier confidence:
//
//	approve        → IMPLEMENTING, approved
//	revise, deny   → PLAN_DRAFTED, not approved
//	ask            → no transition
func (m *Machine) ProcessApproval(decision intent.Intent) (ApprovalResult, error) {
	if m.Current() != StateAwaitingPlan {
		return ApprovalResult{NewState: m.Current(), Intent: decision}, ErrNotAwaitingApproval
	}

	switch decision {
	case intent.IntentApprove:
		changed := m.Transition(StateImplementing, "plan approved")
		return ApprovalResult{Approved: true, NewState: m.Current(), Changed: changed, Intent: decision}, nil
	case intent.IntentRevise, intent.IntentDeny:
		changed := m.Transition(StatePlanDrafted, "plan sent back: "+string(decision))
		return ApprovalResult{Approved: false, NewState: m.Current(), Changed: changed, Intent: decision}, nil
	case intent.IntentAsk:
		return ApprovalResult{Approved: false, NewState: m.Current(), Changed: false, Intent: decision}, nil
	default:
		return ApprovalResult{NewState: m.Current(), Intent: decision}, errors.New("unknown approval decision: " + string(decision))
	}
}

// ProcessNaturalLanguageApproval classifies free text and applies the
// decision when confidence clears the approve threshold. Between the confirm
// and approve thresholds it asks the caller to confirm without mutating;
// below the confirm threshold nothing happens.
func (m *Machine) ProcessNaturalLanguageApproval(classifier *intent.Classifier, text string) (NLApprovalResult, error) {
	if m.Current() != StateAwaitingPlan {
		return NLApprovalResult{Action: NLNoChange, NewState: m.Current()}, ErrNotAwaitingApproval
	}

	result := classifier.Classify(text)
	cfg := classifier.Config()

	out := NLApprovalResult{
		Intent:     result.Intent,
		Confidence: result.Confidence,
		Reasoning:  result.Reasoning,
		NewState:   m.Current(),
	}

	switch {
	case result.Confidence >= cfg.ApproveThreshold:
		applied, err := m.ProcessApproval(result.Intent)
		if err != nil {
			return out, err
		}
		out.Action = NLDirectApply
		out.Approved = applied.Approved
		out.NewState = applied.NewState
	case result.Confidence >= cfg.ConfirmThreshold:
		out.Action = NLConfirm
	default:
		out.Action = NLNoChange
	}
	return out, nil
}
