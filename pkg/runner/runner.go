// Package runner is the command-shaped facade over the orchestrator: one
// method per workflow phase, each returning a uniform result instead of
// raw orchestrator types. Callers that only want to drive the loop (the
// CLI, an API server) depend on this package, not on the orchestrator.
package runner

import (
	"context"
	"fmt"

	"github.com/kadirpekel/tabula/pkg/orchestrator"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// Status classifies the outcome of one facade command.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusNeedsInput Status = "needs_input"
	StatusBlocked    Status = "blocked"
	StatusError      Status = "error"
)

// Result is the uniform return shape of every facade command. Approval is
// populated only by SubmitPlanDecision when the input went through
// natural-language classification.
type Result struct {
	Status   Status                     `json:"status"`
	State    workflow.State             `json:"state"`
	Message  string                     `json:"message,omitempty"`
	Approval *workflow.NLApprovalResult `json:"approval,omitempty"`
}

// Runner wraps one orchestrator. It holds no state of its own; every
// command reads the workflow state fresh and delegates.
type Runner struct {
	o *orchestrator.Orchestrator
}

// New wraps an orchestrator in the command facade.
func New(o *orchestrator.Orchestrator) *Runner {
	return &Runner{o: o}
}

// Orchestrator returns the wrapped orchestrator for callers that need the
// event bus or tool registry.
func (r *Runner) Orchestrator() *orchestrator.Orchestrator { return r.o }

// State returns the current workflow state.
func (r *Runner) State() workflow.State { return r.o.State() }

// StartPlan feeds product requirements to the planning agent. Legal only
// during the planning phase.
func (r *Runner) StartPlan(ctx context.Context, requirements string) Result {
	switch r.o.State() {
	case workflow.StatePRDIntake, workflow.StatePRDClarifying, workflow.StatePlanDrafted:
	default:
		return r.blocked(fmt.Sprintf("planning is not available in state %s", r.o.State()))
	}

	res, err := r.o.ProcessInput(ctx, requirements)
	if err != nil {
		return r.errorResult(err)
	}
	return Result{Status: StatusSuccess, State: res.State, Message: res.Response}
}

// SubmitPlanDecision routes a plan decision (an explicit "/plan ..." command
// or free text) while the plan awaits confirmation. Free text that does
// not clear the approve threshold returns needs_input without mutating the
// workflow; the Approval field tells the caller what the classifier saw.
func (r *Runner) SubmitPlanDecision(ctx context.Context, text string) Result {
	if r.o.State() != workflow.StateAwaitingPlan {
		return r.blocked("no plan is awaiting confirmation")
	}

	res, err := r.o.ProcessInput(ctx, text)
	if err != nil {
		return r.errorResult(err)
	}

	out := Result{Status: StatusSuccess, State: res.State, Message: res.Response, Approval: res.Approval}
	if res.Approval != nil && res.Approval.Action != workflow.NLDirectApply {
		out.Status = StatusNeedsInput
	}
	return out
}

// RunBuild runs one builder step. While the plan awaits confirmation the
// build must not start: the result is needs_input and no transition occurs.
func (r *Runner) RunBuild(ctx context.Context) Result {
	switch r.o.State() {
	case workflow.StateAwaitingPlan:
		return Result{
			Status:  StatusNeedsInput,
			State:   r.o.State(),
			Message: "the plan awaits confirmation; approve it before building",
		}
	case workflow.StateImplementing:
	default:
		return r.blocked(fmt.Sprintf("build is not available in state %s", r.o.State()))
	}

	return r.step(ctx)
}

// RunQA runs the QA agent under the bounded reflexion loop. From
// IMPLEMENTING it first moves the run into QA.
func (r *Runner) RunQA(ctx context.Context) Result {
	if r.o.State() == workflow.StateImplementing {
		r.o.Advance(workflow.StateQA, "qa requested")
	}
	if r.o.State() != workflow.StateQA {
		return r.blocked(fmt.Sprintf("qa is not available in state %s", r.o.State()))
	}

	res, err := r.o.RunQAWithReflexion(ctx)
	if err != nil {
		return r.errorResult(err)
	}
	if !res.Success {
		return Result{
			Status:  StatusError,
			State:   r.o.State(),
			Message: fmt.Sprintf("tests still failing after %d attempts", res.Attempts),
		}
	}
	return Result{
		Status:  StatusSuccess,
		State:   r.o.State(),
		Message: fmt.Sprintf("tests passed on attempt %d", res.Attempts),
	}
}

// RunReview runs one review step. Legal only in REVIEW.
func (r *Runner) RunReview(ctx context.Context) Result {
	if r.o.State() != workflow.StateReview {
		return r.blocked(fmt.Sprintf("review is not available in state %s", r.o.State()))
	}
	return r.step(ctx)
}

// RunRefactor runs one refactor step. From REVIEW it first moves the run
// into REFACTOR.
func (r *Runner) RunRefactor(ctx context.Context) Result {
	if r.o.State() == workflow.StateReview {
		r.o.Advance(workflow.StateRefactor, "refactor requested")
	}
	if r.o.State() != workflow.StateRefactor {
		return r.blocked(fmt.Sprintf("refactor is not available in state %s", r.o.State()))
	}
	return r.step(ctx)
}

// Stop halts the run. Idempotent; always succeeds.
func (r *Runner) Stop(reason string) Result {
	r.o.Stop(reason)
	return Result{Status: StatusSuccess, State: r.o.State(), Message: "run stopped: " + reason}
}

func (r *Runner) step(ctx context.Context) Result {
	res, err := r.o.RunStep(ctx)
	if err != nil {
		return r.errorResult(err)
	}
	return Result{Status: StatusSuccess, State: res.State, Message: res.Response}
}

func (r *Runner) blocked(message string) Result {
	return Result{Status: StatusBlocked, State: r.o.State(), Message: message}
}

func (r *Runner) errorResult(err error) Result {
	return Result{Status: StatusError, State: r.o.State(), Message: err.Error()}
}
