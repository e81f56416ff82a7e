package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/model"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// gatewayAgent is the shared shape of the built-in agents: one system
// prompt, one model call per turn, and an optional post-step.
type gatewayAgent struct {
	name   string
	actor  event.Actor
	prompt string
	after  func(ctx context.Context, ac *AgentContext, content string) error
}

func (a *gatewayAgent) Name() string       { return a.name }
func (a *gatewayAgent) Actor() event.Actor { return a.actor }

func (a *gatewayAgent) Run(ctx context.Context, ac *AgentContext) (string, error) {
	messages := make([]model.Message, 0, len(ac.Messages)+1)
	messages = append(messages, model.Message{Role: model.RoleSystem, Content: a.prompt})
	messages = append(messages, ac.Messages...)

	specs := toolSpecs(ac)

	ac.Emit(event.TypeModelCall, map[string]any{
		"agent":        a.name,
		"messageCount": len(messages),
		"toolCount":    len(specs),
	})

	result, err := ac.Gateway.Call(ctx, messages, specs, model.CallConfig{})
	if err != nil {
		ac.Emit(event.TypeModelResult, map[string]any{"agent": a.name, "error": err.Error()})
		return "", fmt.Errorf("agent %s model call failed: %w", a.name, err)
	}

	// Usage keys deliberately avoid the word "token": the redactor treats
	// token-named keys as secrets.
	ac.Emit(event.TypeModelResult, map[string]any{
		"agent":        a.name,
		"finishReason": result.FinishReason,
		"usage": map[string]any{
			"prompt":     result.TokenUsage.PromptTokens,
			"completion": result.TokenUsage.CompletionTokens,
		},
		"latencyMs": result.LatencyMs,
	})

	for _, call := range result.ToolCalls {
		ac.ExecuteTool(ctx, ToolRequest{
			ToolName:  call.Name,
			Arguments: call.Args,
			Actor:     a.actor,
		})
	}

	if a.after != nil {
		if err := a.after(ctx, ac, result.Content); err != nil {
			return result.Content, err
		}
	}
	return result.Content, nil
}

func toolSpecs(ac *AgentContext) []model.ToolSpec {
	if ac.Tools == nil {
		return nil
	}
	defs := ac.Tools.List()
	specs := make([]model.ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, model.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return specs
}

// builtinAgents returns the five default roles of the development loop.
func builtinAgents() []Agent {
	return []Agent{
		&gatewayAgent{
			name:  "plan",
			actor: event.ActorPlanAgent,
			prompt: "You are the planning agent. Read the product requirements in the " +
				"conversation and produce a concise implementation plan with numbered " +
				"milestones. Ask one clarifying question instead if the requirements " +
				"are ambiguous.",
			after: advancePlan,
		},
		&gatewayAgent{
			name:  "builder",
			actor: event.ActorBuilderAgent,
			prompt: "You are the builder agent. Implement the approved plan step by " +
				"step using the available tools. Propose edits as diffs; never claim " +
				"work you did not do.",
		},
		&gatewayAgent{
			name:  "qa",
			actor: event.ActorQAAgent,
			prompt: "You are the QA agent. Run the test suite against the current " +
				"changes and report the outcome verbatim, including failing test " +
				"names and error messages.",
		},
		&gatewayAgent{
			name:  "review",
			actor: event.ActorReviewAgent,
			prompt: "You are the review agent. Read the implemented changes and " +
				"report defects, risks, and style problems. You have read-only " +
				"authority.",
		},
		&gatewayAgent{
			name:  "refactor",
			actor: event.ActorRefactorAgent,
			prompt: "You are the refactor agent. Improve the structure of the " +
				"reviewed code without changing behavior.",
		},
	}
}

// advancePlan moves a drafted plan into the confirmation gate. A clarifying
// question keeps (or puts) the run in PRD_CLARIFYING instead.
func advancePlan(ctx context.Context, ac *AgentContext, content string) error {
	if looksLikeQuestion(content) {
		if ac.State == workflow.StatePRDIntake {
			ac.Transition(workflow.StatePRDClarifying, "plan agent needs clarification")
		}
		return nil
	}
	switch ac.State {
	case workflow.StatePRDIntake, workflow.StatePRDClarifying:
		ac.Transition(workflow.StatePlanDrafted, "plan drafted")
		ac.Transition(workflow.StateAwaitingPlan, "plan ready for confirmation")
	case workflow.StatePlanDrafted:
		ac.Transition(workflow.StateAwaitingPlan, "plan ready for confirmation")
	}
	return nil
}

func looksLikeQuestion(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasSuffix(trimmed, "?")
}
