package orchestrator

import (
	"context"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/model"
	"github.com/kadirpekel/tabula/pkg/tools"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// Agent is one role in the development loop. Agents receive everything they
// may touch through the AgentContext; they never reach into the
// orchestrator directly.
type Agent interface {
	Name() string
	Actor() event.Actor
	Run(ctx context.Context, ac *AgentContext) (string, error)
}

// AgentContext is the capability surface handed to an agent for one turn.
// Emit tags events with the agent's actor; Transition refuses illegal edges.
type AgentContext struct {
	State    workflow.State
	Messages []model.Message
	Tools    *tools.Registry
	Gateway  model.Gateway

	Emit        func(t event.Type, payload any)
	ExecuteTool func(ctx context.Context, req ToolRequest) tools.Result
	Transition  func(to workflow.State, reason string) bool
}

// ToolRequest is an agent's (or the facade's) request for one tool call.
type ToolRequest struct {
	ToolName     string         `json:"toolName"`
	Arguments    map[string]any `json:"arguments"`
	UserApproved bool           `json:"userApproved,omitempty"`
	Actor        event.Actor    `json:"-"`
}
