// Package quota resolves what happens when a run hits its usage limits.
// The resolver is consulted at the plan boundary, before any model call is
// scheduled: it maps the configured hard-limit behavior to a block, a
// degraded profile, or a queue slot, with a soft-limit warning overlay.
package quota

import (
	"fmt"
	"time"
)

// Behavior selects what a hard-limit hit does.
type Behavior string

const (
	BehaviorBlock   Behavior = "block"
	BehaviorDegrade Behavior = "degrade"
	BehaviorQueue   Behavior = "queue"
)

// Action is the coarse decision attached to a check result.
type Action string

const (
	ActionAllow Action = "allow"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// ResultType is the fine-grained outcome consumed by the facade.
type ResultType string

const (
	ResultAllow      ResultType = "allow"
	ResultWarn       ResultType = "warn"
	ResultNeedsInput ResultType = "needs_input"
	ResultDegraded   ResultType = "degraded"
	ResultQueued     ResultType = "queued"
)

// DegradedProfile is the model profile selected when degrading.
const DegradedProfile = "cheap"

// Limits are the configured monthly/daily caps. Zero means unlimited.
type Limits struct {
	TokensPerMonth int64 `yaml:"tokens_per_month"`
	RequestsPerDay int64 `yaml:"requests_per_day"`
}

// Usage is the current consumption snapshot.
type Usage struct {
	TokensUsed    int64 `json:"tokensUsed"`
	RequestsToday int64 `json:"requestsToday"`
}

// Config tunes the resolver.
type Config struct {
	HardLimitBehavior Behavior `yaml:"hard_limit_behavior"`
	QueueEtaMinutes   int      `yaml:"queue_eta_minutes"`
	SoftLimitPercent  float64  `yaml:"soft_limit_percent"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.HardLimitBehavior == "" {
		c.HardLimitBehavior = BehaviorBlock
	}
	if c.QueueEtaMinutes <= 0 {
		c.QueueEtaMinutes = 5
	}
	if c.SoftLimitPercent <= 0 {
		c.SoftLimitPercent = 80
	}
}

// Validate checks the behavior value.
func (c *Config) Validate() error {
	switch c.HardLimitBehavior {
	case BehaviorBlock, BehaviorDegrade, BehaviorQueue:
		return nil
	default:
		return fmt.Errorf("unknown hard limit behavior %q", c.HardLimitBehavior)
	}
}

// QueueInfo describes the queue slot handed out under BehaviorQueue.
type QueueInfo struct {
	EtaMinutes int    `json:"etaMinutes"`
	QueuedAt   string `json:"queuedAt"`
}

// Result is the resolver's decision.
type Result struct {
	Allowed           bool       `json:"allowed"`
	Action            Action     `json:"action"`
	ResultType        ResultType `json:"resultType"`
	DegradedProfile   string     `json:"degradedProfile,omitempty"`
	Warning           string     `json:"warning,omitempty"`
	RecommendedAction string     `json:"recommendedAction,omitempty"`
	Queue             *QueueInfo `json:"queue,omitempty"`
}

// Resolver applies the configured hard-limit behavior to usage snapshots.
type Resolver struct {
	limits Limits
	config Config
	now    func() time.Time
}

// NewResolver creates a resolver. The config is defaulted and validated;
// an invalid behavior falls back to block, the safe choice.
func NewResolver(limits Limits, config Config) *Resolver {
	config.SetDefaults()
	if config.Validate() != nil {
		config.HardLimitBehavior = BehaviorBlock
	}
	return &Resolver{limits: limits, config: config, now: time.Now}
}

// Check decides whether a request needing tokensNeeded more tokens may
// proceed under the current usage.
func (r *Resolver) Check(usage Usage, tokensNeeded int64) Result {
	if r.hardLimitHit(usage, tokensNeeded) {
		return r.resolveHardLimit()
	}
	if warning, ok := r.softLimitHit(usage, tokensNeeded); ok {
		return Result{
			Allowed:    true,
			Action:     ActionWarn,
			ResultType: ResultWarn,
			Warning:    warning,
		}
	}
	return Result{Allowed: true, Action: ActionAllow, ResultType: ResultAllow}
}

func (r *Resolver) hardLimitHit(usage Usage, tokensNeeded int64) bool {
	if r.limits.TokensPerMonth > 0 {
		if usage.TokensUsed >= r.limits.TokensPerMonth {
			return true
		}
		if usage.TokensUsed+tokensNeeded > r.limits.TokensPerMonth {
			return true
		}
	}
	if r.limits.RequestsPerDay > 0 && usage.RequestsToday >= r.limits.RequestsPerDay {
		return true
	}
	return false
}

func (r *Resolver) softLimitHit(usage Usage, tokensNeeded int64) (string, bool) {
	if r.limits.TokensPerMonth <= 0 {
		return "", false
	}
	projected := float64(usage.TokensUsed+tokensNeeded) / float64(r.limits.TokensPerMonth) * 100
	if projected >= r.config.SoftLimitPercent {
		return fmt.Sprintf("Approaching monthly token limit: %.0f%% of %d tokens used.",
			projected, r.limits.TokensPerMonth), true
	}
	return "", false
}

func (r *Resolver) resolveHardLimit() Result {
	switch r.config.HardLimitBehavior {
	case BehaviorDegrade:
		return Result{
			Allowed:         true,
			Action:          ActionWarn,
			ResultType:      ResultDegraded,
			DegradedProfile: DegradedProfile,
			Warning:         "Hard usage limit reached. Auto-degrading to low-cost profile.",
		}
	case BehaviorQueue:
		eta := r.config.QueueEtaMinutes
		if eta < 1 {
			eta = 1
		}
		return Result{
			Allowed:    false,
			Action:     ActionBlock,
			ResultType: ResultQueued,
			Queue: &QueueInfo{
				EtaMinutes: eta,
				QueuedAt:   r.now().UTC().Format(time.RFC3339),
			},
		}
	default: // BehaviorBlock
		return Result{
			Allowed:           false,
			Action:            ActionBlock,
			ResultType:        ResultNeedsInput,
			RecommendedAction: "Reduce workload, wait for reset, or upgrade plan.",
		}
	}
}
