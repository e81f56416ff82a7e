package quota

import (
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{TokensPerMonth: 100, RequestsPerDay: 10}
}

func TestCheck_HardLimitBehaviors(t *testing.T) {
	tests := []struct {
		behavior   Behavior
		allowed    bool
		resultType ResultType
	}{
		{BehaviorQueue, false, ResultQueued},
		{BehaviorDegrade, true, ResultDegraded},
		{BehaviorBlock, false, ResultNeedsInput},
	}

	for _, tt := range tests {
		t.Run(string(tt.behavior), func(t *testing.T) {
			r := NewResolver(testLimits(), Config{
				HardLimitBehavior: tt.behavior,
				QueueEtaMinutes:   9,
			})
			got := r.Check(Usage{TokensUsed: 0, RequestsToday: 0}, 101)

			if got.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.allowed)
			}
			if got.ResultType != tt.resultType {
				t.Errorf("ResultType = %s, want %s", got.ResultType, tt.resultType)
			}
		})
	}
}

func TestCheck_QueueDetails(t *testing.T) {
	r := NewResolver(testLimits(), Config{HardLimitBehavior: BehaviorQueue, QueueEtaMinutes: 9})
	fixed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	got := r.Check(Usage{}, 101)
	if got.Queue == nil {
		t.Fatal("expected queue info")
	}
	if got.Queue.EtaMinutes != 9 {
		t.Errorf("EtaMinutes = %d, want 9", got.Queue.EtaMinutes)
	}
	if got.Queue.QueuedAt != "2026-08-24T12:00:00Z" {
		t.Errorf("QueuedAt = %s", got.Queue.QueuedAt)
	}
	if got.Action != ActionBlock {
		t.Errorf("Action = %s, want block", got.Action)
	}
}

func TestCheck_QueueEtaFloorsAtOne(t *testing.T) {
	r := NewResolver(testLimits(), Config{HardLimitBehavior: BehaviorQueue})
	r.config.QueueEtaMinutes = 0 // simulate a zeroed config slipping through
	got := r.Check(Usage{TokensUsed: 100}, 1)
	if got.Queue == nil || got.Queue.EtaMinutes != 1 {
		t.Errorf("eta must floor at 1, got %+v", got.Queue)
	}
}

func TestCheck_DegradeDetails(t *testing.T) {
	r := NewResolver(testLimits(), Config{HardLimitBehavior: BehaviorDegrade})
	got := r.Check(Usage{TokensUsed: 100}, 10)

	if !got.Allowed {
		t.Error("degrade must allow")
	}
	if got.DegradedProfile != "cheap" {
		t.Errorf("DegradedProfile = %q, want cheap", got.DegradedProfile)
	}
	if got.Action != ActionWarn {
		t.Errorf("Action = %s, want warn", got.Action)
	}
}

func TestCheck_BlockRecommendation(t *testing.T) {
	r := NewResolver(testLimits(), Config{HardLimitBehavior: BehaviorBlock})
	got := r.Check(Usage{TokensUsed: 100}, 1)

	if got.RecommendedAction != "Reduce workload, wait for reset, or upgrade plan." {
		t.Errorf("RecommendedAction = %q", got.RecommendedAction)
	}
}

func TestCheck_RequestLimit(t *testing.T) {
	r := NewResolver(testLimits(), Config{HardLimitBehavior: BehaviorBlock})
	got := r.Check(Usage{TokensUsed: 1, RequestsToday: 10}, 1)
	if got.Allowed {
		t.Error("daily request limit must trigger the hard path")
	}
}

func TestCheck_SoftLimitWarns(t *testing.T) {
	r := NewResolver(testLimits(), Config{HardLimitBehavior: BehaviorBlock, SoftLimitPercent: 80})
	got := r.Check(Usage{TokensUsed: 79}, 5) // 84% projected

	if !got.Allowed {
		t.Error("soft limit must allow")
	}
	if got.ResultType != ResultWarn {
		t.Errorf("ResultType = %s, want warn", got.ResultType)
	}
	if got.Warning == "" {
		t.Error("expected approaching-limit warning")
	}
}

func TestCheck_UnderLimitsAllows(t *testing.T) {
	r := NewResolver(testLimits(), Config{HardLimitBehavior: BehaviorQueue})
	got := r.Check(Usage{TokensUsed: 10, RequestsToday: 2}, 5)

	if !got.Allowed || got.ResultType != ResultAllow {
		t.Errorf("got %+v, want plain allow", got)
	}
}

func TestCheck_ZeroLimitsUnlimited(t *testing.T) {
	r := NewResolver(Limits{}, Config{HardLimitBehavior: BehaviorBlock})
	got := r.Check(Usage{TokensUsed: 1 << 40, RequestsToday: 1 << 20}, 1<<40)
	if !got.Allowed {
		t.Error("zero limits mean unlimited")
	}
}
