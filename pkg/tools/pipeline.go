package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/observability"
	"github.com/kadirpekel/tabula/pkg/redact"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// ExecContext carries the per-call execution context the gates consult.
type ExecContext struct {
	State            workflow.State
	ApprovalMode     ApprovalMode
	WorkingDirectory string
	UserApproved     bool
	Actor            event.Actor
}

// Pipeline mediates every tool invocation. Gates run in a fixed order and
// the first failing gate decides; the handler only runs on allow. Every call
// produces exactly one tool.call and one tool.result event, with any policy
// event in between.
type Pipeline struct {
	bus      *event.Bus
	commands *CommandPolicy
	metrics  *observability.Metrics
}

// PipelineOption configures a Pipeline at construction.
type PipelineOption func(*Pipeline)

// WithCommandPolicy overrides the default dangerous-command policy.
func WithCommandPolicy(policy *CommandPolicy) PipelineOption {
	return func(p *Pipeline) { p.commands = policy }
}

// WithPipelineMetrics attaches runtime metrics.
func WithPipelineMetrics(m *observability.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline publishing on the given bus.
func NewPipeline(bus *event.Bus, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		bus:      bus,
		commands: NewCommandPolicy(),
		metrics:  observability.NoopMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one tool call through the gates. It never returns an error:
// handler failures and panics surface as a Result with status error.
func (p *Pipeline) Execute(ctx context.Context, def Definition, args map[string]any, execCtx ExecContext) Result {
	ctx, span := observability.Tracer().Start(ctx, "tools.Execute",
		trace.WithAttributes(
			attribute.String("tool.name", def.Name),
			attribute.String("tool.operation", string(def.Operation)),
			attribute.String("workflow.state", string(execCtx.State)),
		))
	defer span.End()

	decision := p.decide(def, args, execCtx)

	// The call event is emitted for every invocation, gated or not, and
	// anchors the correlation chain for the policy and result events.
	callEnv, err := p.bus.Emit(event.TypeToolCall, map[string]any{
		"toolName":         def.Name,
		"arguments":        args,
		"requiresApproval": decision.Decision == DecisionNeedsApproval || def.RequiresApproval,
	}, event.EmitOptions{Actor: execCtx.Actor})
	correlationID := ""
	if err != nil {
		slog.Warn("tool.call emit failed", "tool", def.Name, "error", err)
	} else {
		correlationID = callEnv.CorrelationID
	}

	p.metrics.ToolExecutions.WithLabelValues(def.Name, string(decision.Decision)).Inc()

	switch decision.Decision {
	case DecisionBlock:
		p.metrics.PolicyBlocks.WithLabelValues(decision.Rule).Inc()
		p.emit(event.TypePolicyBlock, map[string]any{
			"rule":    decision.Rule,
			"message": decision.Reason,
			"action":  fmt.Sprintf("%s:%s", def.Operation, def.Name),
		}, correlationID, execCtx.Actor)
		p.emit(event.TypeToolResult, map[string]any{
			"success":    false,
			"error":      decision.Reason,
			"durationMs": int64(0),
		}, correlationID, execCtx.Actor)
		return Result{
			Status:   StatusBlocked,
			ToolName: def.Name,
			Message:  decision.Reason,
			Policy:   Policy{Decision: DecisionBlock, Reason: decision.Reason},
		}

	case DecisionNeedsApproval:
		p.metrics.ApprovalRequests.Inc()
		p.emit(event.TypeToolResult, map[string]any{
			"success": false,
			"error":   decision.Reason,
		}, correlationID, execCtx.Actor)
		return Result{
			Status:   StatusNeedsInput,
			ToolName: def.Name,
			Message:  decision.Reason,
			Policy:   Policy{Decision: DecisionNeedsApproval, Reason: decision.Reason},
		}
	}

	start := time.Now()
	handlerResult, handlerErr := p.invoke(ctx, def, args)
	duration := time.Since(start)
	p.metrics.ToolDuration.Observe(duration.Seconds())

	p.emit(event.TypeToolResult, map[string]any{
		"success":    handlerResult.Success,
		"data":       handlerResult.Data,
		"error":      handlerResult.Error,
		"durationMs": duration.Milliseconds(),
	}, correlationID, execCtx.Actor)

	status := StatusSuccess
	message := ""
	if handlerErr != nil || !handlerResult.Success {
		status = StatusError
		message = handlerResult.Error
	}
	return Result{
		Status:   status,
		ToolName: def.Name,
		Message:  message,
		Policy:   Policy{Decision: DecisionAllow},
		Result:   &handlerResult,
		Duration: duration,
	}
}

// gateDecision is the verdict of the gate chain.
type gateDecision struct {
	Decision Decision
	Rule     string
	Reason   string
}

// decide runs the four gates in order; the first failing gate wins.
func (p *Pipeline) decide(def Definition, args map[string]any, execCtx ExecContext) gateDecision {
	// State gate: non-read operations are locked out of planning states.
	if def.Operation != OperationRead && execCtx.State.WriteBlocked() {
		return gateDecision{
			Decision: DecisionBlock,
			Rule:     "state",
			Reason:   fmt.Sprintf("%s operations are not allowed in state %s", def.Operation, execCtx.State),
		}
	}

	// Dangerous-command gate: exec commands matching a flagged pattern are
	// blocked unconditionally, approval or not.
	command := commandArg(args)
	if def.Operation == OperationExec && command != "" {
		if pattern, hit := p.commands.Dangerous(command); hit {
			return gateDecision{
				Decision: DecisionBlock,
				Rule:     "dangerous_command",
				Reason:   fmt.Sprintf("command matches dangerous pattern %s", pattern),
			}
		}
	}

	// Guardian gate: sensitive material in arguments blocks any operation
	// that could write it somewhere.
	if def.Operation != OperationRead && redact.Scan(args) {
		return gateDecision{
			Decision: DecisionBlock,
			Rule:     "guardian",
			Reason:   "tool arguments contain sensitive data",
		}
	}

	// Approval gate.
	if required := p.approvalRequired(def, command, execCtx); required && !execCtx.UserApproved {
		return gateDecision{
			Decision: DecisionNeedsApproval,
			Reason:   fmt.Sprintf("tool %s requires user approval in %s mode", def.Name, execCtx.ApprovalMode),
		}
	}

	return gateDecision{Decision: DecisionAllow}
}

// approvalRequired applies the approval-mode matrix. A tool-declared
// requiresApproval flag is honored in every mode.
func (p *Pipeline) approvalRequired(def Definition, command string, execCtx ExecContext) bool {
	if def.RequiresApproval {
		return true
	}

	switch execCtx.ApprovalMode {
	case ModeStrict, ModeBalanced:
		return def.Operation != OperationRead
	case ModeFast:
		if def.Operation != OperationExec {
			return false
		}
		if def.AllowInFastMode {
			return false
		}
		return !FastAllowed(command)
	default:
		// Unknown mode gets the most conservative treatment.
		return def.Operation != OperationRead
	}
}

// invoke calls the handler, converting a panic into a failed result.
func (p *Pipeline) invoke(ctx context.Context, def Definition, args map[string]any) (result HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool handler panicked", "tool", def.Name, "panic", r)
			result = HandlerResult{Success: false, Error: fmt.Sprintf("tool handler panicked: %v", r)}
			err = fmt.Errorf("tool %s panicked: %v", def.Name, r)
		}
	}()

	result, err = def.Handler(ctx, args)
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	if err != nil {
		result.Success = false
	}
	return result, err
}

func (p *Pipeline) emit(t event.Type, payload map[string]any, correlationID string, actor event.Actor) {
	if _, err := p.bus.Emit(t, payload, event.EmitOptions{CorrelationID: correlationID, Actor: actor}); err != nil {
		slog.Warn("event emit failed", "type", t, "error", err)
	}
}

// commandArg extracts the shell command from the conventional argument key.
func commandArg(args map[string]any) string {
	if args == nil {
		return ""
	}
	if cmd, ok := args["command"].(string); ok {
		return cmd
	}
	return ""
}
