// Package intent deterministically maps free-text user replies to an
// approval decision with a confidence score. Scoring is purely lexical:
// weighted phrase patterns per intent, English and Turkish, with a
// configurable conflict policy. Same input, same output — no randomness,
// no clock.
package intent

import (
	"fmt"
	"sort"
	"strings"
)

// Intent is an approval decision derived from user text.
type Intent string

const (
	IntentApprove Intent = "approve"
	IntentRevise  Intent = "revise"
	IntentAsk     Intent = "ask"
	IntentDeny    Intent = "deny"
)

// intentOrder fixes iteration order so ties resolve deterministically.
var intentOrder = []Intent{IntentApprove, IntentRevise, IntentAsk, IntentDeny}

// ConflictPolicy selects how competing intents are resolved.
type ConflictPolicy string

const (
	// DenyOverApprove prefers deny, then revise, over an approving top intent.
	DenyOverApprove ConflictPolicy = "deny_over_approve"
	// ApproveOverDeny is the symmetric policy, approve first.
	ApproveOverDeny ConflictPolicy = "approve_over_deny"
	// Strict returns ask whenever any conflict exists.
	Strict ConflictPolicy = "strict"
)

// conflictFloor is the confidence above which a non-top intent counts as
// conflicting.
const conflictFloor = 0.3

// Config tunes the classifier. The zero value is not usable; call
// DefaultConfig.
type Config struct {
	ApproveThreshold float64
	ConfirmThreshold float64
	ConflictPolicy   ConflictPolicy
}

// DefaultConfig returns the empirically pinned defaults.
func DefaultConfig() Config {
	return Config{
		ApproveThreshold: 0.85,
		ConfirmThreshold: 0.60,
		ConflictPolicy:   DenyOverApprove,
	}
}

// Validate checks threshold ranges and the policy value.
func (c Config) Validate() error {
	if c.ApproveThreshold <= 0 || c.ApproveThreshold > 1 {
		return fmt.Errorf("approve threshold %v out of range (0,1]", c.ApproveThreshold)
	}
	if c.ConfirmThreshold <= 0 || c.ConfirmThreshold > 1 {
		return fmt.Errorf("confirm threshold %v out of range (0,1]", c.ConfirmThreshold)
	}
	switch c.ConflictPolicy {
	case DenyOverApprove, ApproveOverDeny, Strict:
	default:
		return fmt.Errorf("unknown conflict policy %q", c.ConflictPolicy)
	}
	return nil
}

// Result is the classification outcome. Purely a value; no lifecycle.
type Result struct {
	Intent             Intent   `json:"intent"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning,omitempty"`
	ConflictingIntents []Intent `json:"conflictingIntents,omitempty"`
}

// Classifier scores utterances against the phrase tables.
type Classifier struct {
	config Config
}

// NewClassifier builds a classifier; invalid config fields fall back to the
// defaults so the classifier is always usable.
func NewClassifier(config Config) *Classifier {
	if config.Validate() != nil {
		defaults := DefaultConfig()
		if config.ApproveThreshold <= 0 || config.ApproveThreshold > 1 {
			config.ApproveThreshold = defaults.ApproveThreshold
		}
		if config.ConfirmThreshold <= 0 || config.ConfirmThreshold > 1 {
			config.ConfirmThreshold = defaults.ConfirmThreshold
		}
		if config.ConflictPolicy == "" {
			config.ConflictPolicy = defaults.ConflictPolicy
		}
	}
	return &Classifier{config: config}
}

// Config returns the classifier's effective configuration.
func (c *Classifier) Config() Config {
	return c.config
}

// Classify maps an utterance to an intent with confidence in [0,1].
func (c *Classifier) Classify(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))

	raw := make(map[Intent]float64, len(intentOrder))
	matched := make(map[Intent][]string, len(intentOrder))

	for _, intent := range intentOrder {
		table := phraseTables[intent]
		score := 0.0
		for _, p := range table.positives {
			if p.re.MatchString(normalized) {
				score += table.weight
				matched[intent] = append(matched[intent], p.label)
			}
		}
		for _, n := range table.negatives {
			if n.re.MatchString(normalized) {
				score -= 2 * table.weight
			}
		}
		if score < 0 {
			score = 0
		}
		raw[intent] = score
	}

	total := 0.0
	for _, intent := range intentOrder {
		total += raw[intent]
	}
	if total == 0 {
		return Result{
			Intent:     IntentAsk,
			Confidence: 0,
			Reasoning:  "no intent phrase matched",
		}
	}

	confidence := make(map[Intent]float64, len(intentOrder))
	top := intentOrder[0]
	for _, intent := range intentOrder {
		confidence[intent] = raw[intent] / total
		if confidence[intent] > confidence[top] {
			top = intent
		}
	}

	var conflicts []Intent
	for _, intent := range intentOrder {
		if intent != top && confidence[intent] > conflictFloor {
			conflicts = append(conflicts, intent)
		}
	}

	resolved := c.resolveConflict(top, conflicts)
	result := Result{
		Intent:             resolved,
		Confidence:         confidence[resolved],
		Reasoning:          buildReasoning(top, resolved, matched, conflicts),
		ConflictingIntents: conflicts,
	}
	if resolved == IntentAsk && raw[IntentAsk] == 0 {
		// Strict policy escalated to ask without a lexical match.
		result.Confidence = confidence[top]
	}
	return result
}

func (c *Classifier) resolveConflict(top Intent, conflicts []Intent) Intent {
	if len(conflicts) == 0 {
		return top
	}

	present := func(intent Intent) bool {
		if top == intent {
			return true
		}
		for _, conflict := range conflicts {
			if conflict == intent {
				return true
			}
		}
		return false
	}

	switch c.config.ConflictPolicy {
	case ApproveOverDeny:
		if present(IntentApprove) {
			return IntentApprove
		}
		if present(IntentRevise) {
			return IntentRevise
		}
		return top
	case Strict:
		return IntentAsk
	default: // DenyOverApprove
		if present(IntentDeny) {
			return IntentDeny
		}
		if present(IntentRevise) {
			return IntentRevise
		}
		return top
	}
}

func buildReasoning(top, resolved Intent, matched map[Intent][]string, conflicts []Intent) string {
	var sb strings.Builder
	phrases := matched[resolved]
	sort.Strings(phrases)
	fmt.Fprintf(&sb, "matched %s phrases: %s", resolved, strings.Join(phrases, ", "))
	if len(conflicts) > 0 {
		names := make([]string, len(conflicts))
		for i, conflict := range conflicts {
			names[i] = string(conflict)
		}
		fmt.Fprintf(&sb, "; conflicts with %s", strings.Join(names, ", "))
	}
	if resolved != top {
		fmt.Fprintf(&sb, "; conflict policy preferred %s over %s", resolved, top)
	}
	return sb.String()
}
