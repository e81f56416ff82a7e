// Package orchestrator drives the development loop: it owns the workflow
// state machine, the event bus, the tool and agent registries, the message
// transcript, and the pending diffs. All entry points are serialized; at
// most one agent step, tool execution, or state transition is in flight.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/tabula/pkg/checkpoint"
	"github.com/kadirpekel/tabula/pkg/config"
	"github.com/kadirpekel/tabula/pkg/diff"
	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/intent"
	"github.com/kadirpekel/tabula/pkg/model"
	"github.com/kadirpekel/tabula/pkg/observability"
	"github.com/kadirpekel/tabula/pkg/quota"
	"github.com/kadirpekel/tabula/pkg/reflexion"
	"github.com/kadirpekel/tabula/pkg/registry"
	"github.com/kadirpekel/tabula/pkg/store"
	"github.com/kadirpekel/tabula/pkg/tools"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// ErrStopped is returned by entry points after Stop.
var ErrStopped = errors.New("orchestrator is stopped")

// Options configures a new Orchestrator. Config, Store, Metrics, and
// InitialState are optional; Gateway is required because the built-in
// agents speak to a model.
type Options struct {
	RunID        string
	ProjectID    string
	Config       *config.Config
	Store        store.Store
	Gateway      model.Gateway
	Metrics      *observability.Metrics
	InitialState workflow.State

	// Agents pre-registers custom agents; built-in roles are only added
	// for names still missing afterwards.
	Agents []Agent
}

// Orchestrator coordinates one run.
type Orchestrator struct {
	cfg      *config.Config
	runID    string
	machine  *workflow.Machine
	bus      *event.Bus
	pipeline *tools.Pipeline
	reviewer *diff.Reviewer
	loop     *reflexion.Loop
	cps      *checkpoint.Manager
	store    store.Store
	gateway  model.Gateway
	metrics  *observability.Metrics

	classifier *intent.Classifier
	resolver   *quota.Resolver
	tools      *tools.Registry
	agents     *registry.BaseRegistry[Agent]

	// turn serializes the command loop: one agent step, approval, or QA
	// cycle at a time.
	turn sync.Mutex

	mu       sync.Mutex
	messages []model.Message
	usage    quota.Usage
	running  bool
}

// New creates an orchestrator, registers the built-in agents, and records
// the run. A store failure is logged, not fatal: persistence is a sink.
func New(opts Options) (*Orchestrator, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("model gateway is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	} else if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopMetrics()
	}
	initial := opts.InitialState
	if initial == "" {
		initial = workflow.StatePRDIntake
	}

	machine := workflow.NewMachine(initial)

	busOpts := []event.BusOption{event.WithMetrics(opts.Metrics)}
	if cfg.Workflow.PersistEvents {
		busOpts = append(busOpts, event.WithSink(store.NewBusSink(opts.Store)))
	}
	bus := event.NewBus(opts.RunID, string(machine.Current()), busOpts...)

	o := &Orchestrator{
		cfg:     cfg,
		runID:   opts.RunID,
		machine: machine,
		bus:     bus,
		store:   opts.Store,
		gateway: opts.Gateway,
		metrics: opts.Metrics,
		classifier: intent.NewClassifier(intent.Config{
			ApproveThreshold: cfg.Intent.ApproveThreshold,
			ConfirmThreshold: cfg.Intent.ConfirmThreshold,
			ConflictPolicy:   intent.ConflictPolicy(cfg.Intent.ConflictPolicy),
		}),
		resolver: quota.NewResolver(
			quota.Limits{
				TokensPerMonth: cfg.Quota.TokensPerMonth,
				RequestsPerDay: cfg.Quota.RequestsPerDay,
			},
			quota.Config{
				HardLimitBehavior: quota.Behavior(cfg.Quota.HardLimitBehavior),
				QueueEtaMinutes:   cfg.Quota.QueueEtaMinutes,
				SoftLimitPercent:  float64(cfg.Quota.SoftLimitPercent),
			}),
		tools:   tools.NewRegistry(),
		agents:  registry.NewBaseRegistry[Agent](),
		running: true,
	}

	// Usage accounting rides the event stream: every model call is one
	// request, every result adds its token total.
	bus.On(event.TypeModelCall, func(env *event.Envelope) {
		o.mu.Lock()
		o.usage.RequestsToday++
		o.mu.Unlock()
	})
	bus.On(event.TypeModelResult, func(env *event.Envelope) {
		payload, ok := env.Payload.(map[string]any)
		if !ok {
			return
		}
		usage, ok := payload["usage"].(map[string]any)
		if !ok {
			return
		}
		o.mu.Lock()
		o.usage.TokensUsed += asInt64(usage["prompt"]) + asInt64(usage["completion"])
		o.mu.Unlock()
	})

	machine.OnTransition(func(from, to workflow.State, reason string, forced bool) {
		bus.SetState(string(to))
		opts.Metrics.StateTransitions.WithLabelValues(string(to)).Inc()
		o.emit(event.TypeStateTransition, map[string]any{
			"from":   string(from),
			"to":     string(to),
			"reason": reason,
			"forced": forced,
		}, "")
	})

	o.pipeline = tools.NewPipeline(bus,
		tools.WithCommandPolicy(tools.NewCommandPolicy(cfg.Workflow.DangerousCommands...)),
		tools.WithPipelineMetrics(opts.Metrics))
	o.reviewer = diff.NewReviewer(bus, machine.Current, machine.Transition)
	o.cps = checkpoint.NewManager(opts.Store, bus, opts.RunID)
	o.loop = reflexion.NewLoop(bus, machine.Transition,
		reflexion.WithMaxRetries(cfg.Workflow.MaxReflexionRetries),
		reflexion.WithLoopMetrics(opts.Metrics),
		reflexion.WithRecorder(func(feedback string) {
			o.appendMessage(model.Message{Role: model.RoleSystem, Content: feedback})
		}))

	for _, agent := range opts.Agents {
		if err := o.agents.Register(agent.Name(), agent); err != nil {
			return nil, fmt.Errorf("failed to register agent: %w", err)
		}
	}
	for _, agent := range builtinAgents() {
		if _, exists := o.agents.Get(agent.Name()); !exists {
			if err := o.agents.Register(agent.Name(), agent); err != nil {
				return nil, fmt.Errorf("failed to register built-in agent: %w", err)
			}
		}
	}

	run := &store.Run{
		ID:               opts.RunID,
		ProjectID:        opts.ProjectID,
		WorkingDirectory: cfg.Workflow.WorkingDirectory,
		Config: map[string]any{
			"approvalMode":        cfg.Workflow.ApprovalMode,
			"maxReflexionRetries": cfg.Workflow.MaxReflexionRetries,
		},
	}
	if err := opts.Store.CreateRun(context.Background(), run); err != nil {
		slog.Warn("failed to record run", "run_id", opts.RunID, "error", err)
	}

	return o, nil
}

// RunID returns the run this orchestrator drives.
func (o *Orchestrator) RunID() string { return o.runID }

// State returns the current workflow state.
func (o *Orchestrator) State() workflow.State { return o.machine.Current() }

// Bus exposes the run's event bus for subscribers.
func (o *Orchestrator) Bus() *event.Bus { return o.bus }

// Tools exposes the tool registry for registration before the run starts.
func (o *Orchestrator) Tools() *tools.Registry { return o.tools }

// Reviewer exposes the diff reviewer.
func (o *Orchestrator) Reviewer() *diff.Reviewer { return o.reviewer }

// Messages returns a copy of the transcript.
func (o *Orchestrator) Messages() []model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

func (o *Orchestrator) appendMessage(msg model.Message) {
	o.mu.Lock()
	o.messages = append(o.messages, msg)
	o.mu.Unlock()
}

// InputResult is the outcome of one processed user input.
type InputResult struct {
	State    workflow.State             `json:"state"`
	Response string                     `json:"response,omitempty"`
	Approval *workflow.NLApprovalResult `json:"approval,omitempty"`
}

// ProcessInput routes one user utterance: the plan-confirmation sub-flow
// while awaiting confirmation, otherwise the agent responsible for the
// current state.
func (o *Orchestrator) ProcessInput(ctx context.Context, text string) (*InputResult, error) {
	o.turn.Lock()
	defer o.turn.Unlock()

	if !o.isRunning() {
		return nil, ErrStopped
	}

	o.emit(event.TypeTurnStart, map[string]any{"inputChars": len(text)}, "")
	defer o.emit(event.TypeTurnEnd, nil, "")

	o.emit(event.TypeUserInput, map[string]any{"text": text}, event.ActorUser)
	o.appendMessage(model.Message{Role: model.RoleUser, Content: text})
	defer o.persistSession(ctx)

	if o.machine.Current() == workflow.StateAwaitingPlan {
		return o.processPlanConfirmation(text)
	}
	return o.dispatchAgent(ctx)
}

// persistSession writes the transcript through to the store. Persistence is
// a sink; failures are logged and suppressed.
func (o *Orchestrator) persistSession(ctx context.Context) {
	err := o.store.SaveSession(ctx, &store.Session{
		ID:       o.runID,
		RunID:    o.runID,
		Messages: o.Messages(),
	})
	if err != nil {
		slog.Warn("failed to persist session", "run_id", o.runID, "error", err)
	}
}

// processPlanConfirmation handles input while the plan awaits confirmation:
// explicit /plan commands first, then natural-language classification.
func (o *Orchestrator) processPlanConfirmation(text string) (*InputResult, error) {
	trimmed := strings.TrimSpace(text)
	if decision, ok := parsePlanCommand(trimmed); ok {
		applied, err := o.processApproval(decision)
		if err != nil {
			return nil, err
		}
		return &InputResult{
			State:    applied.NewState,
			Response: planDecisionResponse(applied),
		}, nil
	}

	result, err := o.machine.ProcessNaturalLanguageApproval(o.classifier, text)
	if err != nil {
		return nil, err
	}
	if result.Action == workflow.NLDirectApply {
		o.emit(event.TypeUserApproval, map[string]any{
			"decision":   string(result.Intent),
			"source":     "natural_language",
			"confidence": result.Confidence,
		}, event.ActorUser)
	}
	return &InputResult{
		State:    result.NewState,
		Response: nlApprovalResponse(result),
		Approval: &result,
	}, nil
}

// parsePlanCommand recognizes "/plan approve|revise|deny|ask".
func parsePlanCommand(text string) (intent.Intent, bool) {
	if !strings.HasPrefix(text, "/plan") {
		return "", false
	}
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", false
	}
	switch fields[1] {
	case "approve":
		return intent.IntentApprove, true
	case "revise":
		return intent.IntentRevise, true
	case "deny":
		return intent.IntentDeny, true
	case "ask":
		return intent.IntentAsk, true
	}
	return "", false
}

func planDecisionResponse(applied workflow.ApprovalResult) string {
	switch {
	case applied.Approved:
		return "Plan approved. Starting implementation."
	case applied.Intent == intent.IntentAsk:
		return "What would you like to know about the plan?"
	default:
		return "Plan sent back for revision."
	}
}

func nlApprovalResponse(result workflow.NLApprovalResult) string {
	switch result.Action {
	case workflow.NLDirectApply:
		if result.Approved {
			return "Plan approved. Starting implementation."
		}
		return "Plan sent back for revision."
	case workflow.NLConfirm:
		return fmt.Sprintf("It sounds like you want to %s the plan. Confirm with /plan %s.",
			result.Intent, result.Intent)
	default:
		return "I could not tell what you want to do with the plan. Use /plan approve, /plan revise, /plan deny, or /plan ask."
	}
}

// RunStep dispatches the agent responsible for the current state without
// new user input. The facade uses it to drive build, review, and refactor
// steps after the plan is confirmed.
func (o *Orchestrator) RunStep(ctx context.Context) (*InputResult, error) {
	o.turn.Lock()
	defer o.turn.Unlock()

	if !o.isRunning() {
		return nil, ErrStopped
	}

	o.emit(event.TypeTurnStart, map[string]any{"inputChars": 0}, "")
	defer o.emit(event.TypeTurnEnd, nil, "")
	defer o.persistSession(ctx)

	return o.dispatchAgent(ctx)
}

// Advance attempts a workflow transition on behalf of the caller. Illegal
// edges are refused, not forced.
func (o *Orchestrator) Advance(to workflow.State, reason string) bool {
	return o.machine.Transition(to, reason)
}

// ApplyConfig swaps the thresholds that are safe to change mid-run: the
// intent classifier's. Structural settings (store, approval mode, retry
// bound) keep their boot values.
func (o *Orchestrator) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	o.turn.Lock()
	defer o.turn.Unlock()
	o.classifier = intent.NewClassifier(intent.Config{
		ApproveThreshold: cfg.Intent.ApproveThreshold,
		ConfirmThreshold: cfg.Intent.ConfirmThreshold,
		ConflictPolicy:   intent.ConflictPolicy(cfg.Intent.ConflictPolicy),
	})
	slog.Info("intent thresholds updated",
		"approve", cfg.Intent.ApproveThreshold,
		"confirm", cfg.Intent.ConfirmThreshold)
	return nil
}

// ProcessApproval applies an explicit plan decision. Valid only while the
// plan awaits confirmation.
func (o *Orchestrator) ProcessApproval(decision intent.Intent) (workflow.ApprovalResult, error) {
	o.turn.Lock()
	defer o.turn.Unlock()
	return o.processApproval(decision)
}

func (o *Orchestrator) processApproval(decision intent.Intent) (workflow.ApprovalResult, error) {
	if !o.isRunning() {
		return workflow.ApprovalResult{NewState: o.machine.Current()}, ErrStopped
	}

	o.emit(event.TypeUserApproval, map[string]any{
		"decision": string(decision),
		"source":   "command",
	}, event.ActorUser)

	return o.machine.ProcessApproval(decision)
}

// checkQuota consults the resolver before an agent step is scheduled. A
// refused check produces the caller-facing message; the step never starts.
func (o *Orchestrator) checkQuota() (proceed bool, message string) {
	needed := int64(o.gateway.TokenCount(o.Messages()))
	o.mu.Lock()
	usage := o.usage
	o.mu.Unlock()

	check := o.resolver.Check(usage, needed)
	switch check.ResultType {
	case quota.ResultWarn, quota.ResultDegraded:
		o.emit(event.TypePolicyWarn, map[string]any{
			"rule":            "quota",
			"message":         check.Warning,
			"resultType":      string(check.ResultType),
			"degradedProfile": check.DegradedProfile,
		}, "")
		return true, ""
	case quota.ResultNeedsInput:
		o.emit(event.TypePolicyBlock, map[string]any{
			"rule":       "quota",
			"message":    check.RecommendedAction,
			"resultType": string(check.ResultType),
		}, "")
		return false, "Usage limit reached. " + check.RecommendedAction
	case quota.ResultQueued:
		o.emit(event.TypePolicyBlock, map[string]any{
			"rule":       "quota",
			"resultType": string(check.ResultType),
			"queue":      check.Queue,
		}, "")
		return false, fmt.Sprintf("Usage limit reached; request queued, ETA %d minutes.", check.Queue.EtaMinutes)
	}
	return true, ""
}

// dispatchAgent invokes the agent responsible for the current state.
func (o *Orchestrator) dispatchAgent(ctx context.Context) (*InputResult, error) {
	state := o.machine.Current()
	if proceed, message := o.checkQuota(); !proceed {
		return &InputResult{State: state, Response: message}, nil
	}
	name, ok := agentForState(state)
	if !ok {
		return &InputResult{
			State:    state,
			Response: "This run is complete. Start a new run to continue.",
		}, nil
	}

	agent, exists := o.agents.Get(name)
	if !exists {
		return nil, fmt.Errorf("no agent registered for role %q", name)
	}

	o.emit(event.TypeAgentStart, map[string]any{"agent": name}, agent.Actor())
	content, err := agent.Run(ctx, o.agentContext(agent))
	if err != nil {
		o.emit(event.TypeError, map[string]any{
			"code":        "AGENT_FAILED",
			"agent":       name,
			"message":     err.Error(),
			"recoverable": true,
		}, agent.Actor())
		o.emit(event.TypeAgentStop, map[string]any{"agent": name, "failed": true}, agent.Actor())
		return nil, err
	}
	o.emit(event.TypeAgentStop, map[string]any{"agent": name}, agent.Actor())

	if content != "" {
		o.appendMessage(model.Message{Role: model.RoleAssistant, Content: content, Name: name})
	}
	return &InputResult{State: o.machine.Current(), Response: content}, nil
}

// agentForState maps a workflow state to the responsible agent role.
func agentForState(state workflow.State) (string, bool) {
	switch state {
	case workflow.StatePRDIntake, workflow.StatePRDClarifying, workflow.StatePlanDrafted:
		return "plan", true
	case workflow.StateImplementing:
		return "builder", true
	case workflow.StateQA:
		return "qa", true
	case workflow.StateReview:
		return "review", true
	case workflow.StateRefactor:
		return "refactor", true
	}
	return "", false
}

// agentContext builds the capability surface for one agent invocation.
func (o *Orchestrator) agentContext(agent Agent) *AgentContext {
	actor := agent.Actor()
	return &AgentContext{
		State:    o.machine.Current(),
		Messages: o.Messages(),
		Tools:    o.tools,
		Gateway:  o.gateway,
		Emit: func(t event.Type, payload any) {
			o.emit(t, payload, actor)
		},
		ExecuteTool: func(ctx context.Context, req ToolRequest) tools.Result {
			if req.Actor == "" {
				req.Actor = actor
			}
			return o.ExecuteTool(ctx, req)
		},
		Transition: o.machine.Transition,
	}
}

// ExecuteTool looks the tool up and delegates to the pipeline. Unknown
// tools surface as an error result, never a Go error.
func (o *Orchestrator) ExecuteTool(ctx context.Context, req ToolRequest) tools.Result {
	def, exists := o.tools.Get(req.ToolName)
	if !exists {
		return tools.Result{
			Status:   tools.StatusError,
			ToolName: req.ToolName,
			Message:  fmt.Sprintf("unknown tool %q", req.ToolName),
			Policy:   tools.Policy{Decision: tools.DecisionBlock, Reason: "tool not registered"},
		}
	}

	return o.pipeline.Execute(ctx, def, req.Arguments, tools.ExecContext{
		State:            o.machine.Current(),
		ApprovalMode:     tools.ApprovalMode(o.cfg.Workflow.ApprovalMode),
		WorkingDirectory: o.cfg.Workflow.WorkingDirectory,
		UserApproved:     req.UserApproved,
		Actor:            req.Actor,
	})
}

// RunQAWithReflexion runs the QA agent under the bounded retry loop,
// routing failure feedback to the builder agent between attempts.
func (o *Orchestrator) RunQAWithReflexion(ctx context.Context) (reflexion.Result, error) {
	o.turn.Lock()
	defer o.turn.Unlock()

	if !o.isRunning() {
		return reflexion.Result{}, ErrStopped
	}

	if proceed, message := o.checkQuota(); !proceed {
		return reflexion.Result{}, errors.New(message)
	}

	qaAgent, exists := o.agents.Get("qa")
	if !exists {
		return reflexion.Result{}, fmt.Errorf("no qa agent registered")
	}
	builderAgent, exists := o.agents.Get("builder")
	if !exists {
		return reflexion.Result{}, fmt.Errorf("no builder agent registered")
	}

	qa := func(ctx context.Context) (string, error) {
		return qaAgent.Run(ctx, o.agentContext(qaAgent))
	}
	fix := func(ctx context.Context, feedback string) error {
		_, err := builderAgent.Run(ctx, o.agentContext(builderAgent))
		return err
	}
	return o.loop.Run(ctx, qa, fix)
}

// snapshot is the opaque payload captured by checkpoints.
type snapshot struct {
	Messages []model.Message `json:"messages"`
}

// CreateCheckpoint saves the workflow state and transcript.
func (o *Orchestrator) CreateCheckpoint(ctx context.Context, description string) (*store.Checkpoint, error) {
	if !o.isRunning() {
		return nil, ErrStopped
	}
	return o.cps.Save(ctx, o.machine.Current(), description, snapshot{Messages: o.Messages()})
}

// RestoreCheckpoint rehydrates the workflow state and transcript from a
// saved checkpoint.
func (o *Orchestrator) RestoreCheckpoint(ctx context.Context, id string) (*store.Checkpoint, error) {
	if !o.isRunning() {
		return nil, ErrStopped
	}
	var snap snapshot
	cp, err := o.cps.Restore(ctx, id, o.machine, &snap)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.messages = snap.Messages
	o.mu.Unlock()
	return cp, nil
}

// Stop marks the orchestrator not-running, records the run as cancelled,
// and emits a closing turn.end. Idempotent. In-flight tool handlers are not
// aborted; their results still reach the bus.
func (o *Orchestrator) Stop(reason string) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	if err := o.store.UpdateRunStatus(context.Background(), o.runID, store.RunCancelled); err != nil {
		slog.Warn("failed to mark run cancelled", "run_id", o.runID, "error", err)
	}
	o.emit(event.TypeTurnEnd, map[string]any{"reason": reason}, "")
	slog.Info("orchestrator stopped", "run_id", o.runID, "reason", reason)
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// asInt64 reads a numeric payload value regardless of whether redaction
// left it as an int or turned it into a float64.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func (o *Orchestrator) emit(t event.Type, payload any, actor event.Actor) {
	if _, err := o.bus.Emit(t, payload, event.EmitOptions{Actor: actor}); err != nil {
		slog.Warn("event emit failed", "type", t, "error", err)
	}
}
