package reflexion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/observability"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// DefaultMaxRetries bounds the QA retry loop when no limit is configured.
const DefaultMaxRetries = 3

// QAFunc runs the QA agent once and returns its raw output.
type QAFunc func(ctx context.Context) (string, error)

// FixFunc asks the builder agent to repair the failure described by
// feedback.
type FixFunc func(ctx context.Context, feedback string) error

// Result reports how the loop ended.
type Result struct {
	Success  bool `json:"success"`
	Attempts int  `json:"attempts"`
}

// Loop drives the bounded QA retry cycle. Each failed attempt feeds a
// structured analysis back to the builder before the next try.
type Loop struct {
	bus        *event.Bus
	transition func(to workflow.State, reason string) bool
	record     func(feedback string)
	metrics    *observability.Metrics
	maxRetries int
}

// LoopOption configures a Loop at construction.
type LoopOption func(*Loop)

// WithMaxRetries overrides the retry bound; values below 1 keep the default.
func WithMaxRetries(n int) LoopOption {
	return func(l *Loop) {
		if n >= 1 {
			l.maxRetries = n
		}
	}
}

// WithRecorder registers a callback that appends the feedback message to the
// conversation transcript before the builder runs.
func WithRecorder(record func(feedback string)) LoopOption {
	return func(l *Loop) { l.record = record }
}

// WithLoopMetrics attaches runtime metrics.
func WithLoopMetrics(m *observability.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// NewLoop creates a reflexion loop bound to the run's bus and state machine.
func NewLoop(bus *event.Bus, transition func(workflow.State, string) bool, opts ...LoopOption) *Loop {
	l := &Loop{
		bus:        bus,
		transition: transition,
		metrics:    observability.NoopMetrics(),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes up to maxRetries QA attempts. A passing attempt advances the
// run to REVIEW; exhaustion emits a non-recoverable error event.
func (l *Loop) Run(ctx context.Context, qa QAFunc, fix FixFunc) (Result, error) {
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1}, err
		}

		l.metrics.ReflexionAttempts.Inc()
		l.emit(event.TypeTestRun, map[string]any{
			"framework":   "reflexion",
			"testPattern": fmt.Sprintf("attempt-%d", attempt),
		})

		output, err := qa(ctx)
		if err != nil {
			output = fmt.Sprintf("ERROR: %v", err)
		}
		outcome := Parse(output)

		if outcome.Passed {
			l.emit(event.TypeTestResult, map[string]any{"passed": 1, "failed": 0})
			l.transition(workflow.StateReview, "qa passed")
			return Result{Success: true, Attempts: attempt}, nil
		}

		l.emit(event.TypeTestResult, map[string]any{"passed": 0, "failed": 1})
		slog.Info("qa attempt failed", "attempt", attempt, "max", l.maxRetries, "error_line", outcome.ErrorLine)

		if attempt == l.maxRetries {
			break
		}

		feedback := ComposeFeedback(attempt, outcome)
		if l.record != nil {
			l.record(feedback)
		}
		if err := fix(ctx, feedback); err != nil {
			slog.Warn("builder fix attempt failed", "attempt", attempt, "error", err)
		}
	}

	l.emit(event.TypeError, map[string]any{
		"code":        "REFLEXION_MAX_RETRIES",
		"recoverable": false,
		"message":     fmt.Sprintf("QA still failing after %d attempts", l.maxRetries),
	})
	return Result{Success: false, Attempts: l.maxRetries}, nil
}

// hints maps canonical error families to a remediation nudge for the
// builder.
var hints = []struct {
	marker string
	advice string
}{
	{"TypeError", "Check for null or undefined values and mismatched argument types."},
	{"AssertionError", "Compare the expected and actual values in the failing assertion."},
	{"SyntaxError", "The last edit does not parse; re-read the modified file."},
	{"ENOENT", "A file or directory is missing; verify paths before accessing them."},
}

// ComposeFeedback builds the system-role message handed to the builder
// after a failed attempt.
func ComposeFeedback(attempt int, outcome Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QA attempt %d failed.\n", attempt)
	if outcome.ErrorLine != "" {
		fmt.Fprintf(&b, "Error: %s\n", outcome.ErrorLine)
	}
	if len(outcome.FailedTests) > 0 {
		fmt.Fprintf(&b, "Failed tests: %s\n", strings.Join(outcome.FailedTests, ", "))
	}
	for _, hint := range hints {
		if strings.Contains(outcome.ErrorLine, hint.marker) {
			fmt.Fprintf(&b, "Hint: %s\n", hint.advice)
		}
	}
	b.WriteString("Fix the reported failures and keep the rest of the change intact.")
	return b.String()
}

func (l *Loop) emit(t event.Type, payload map[string]any) {
	if _, err := l.bus.Emit(t, payload, event.EmitOptions{Actor: event.ActorQAAgent}); err != nil {
		slog.Warn("event emit failed", "type", t, "error", err)
	}
}
