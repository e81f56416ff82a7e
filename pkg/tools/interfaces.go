// Package tools defines the tool contract and the execution pipeline that
// mediates every tool invocation: state authority, dangerous-command
// screening, the guardian sensitive-data gate, and the approval gate, in
// that order. The pipeline never propagates a handler failure as an error;
// every outcome is a typed result plus the prescribed event sequence.
package tools

import (
	"context"
	"time"
)

// Operation classifies what a tool does to the world.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationDelete Operation = "delete"
	OperationExec   Operation = "exec"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OperationRead, OperationWrite, OperationDelete, OperationExec:
		return true
	}
	return false
}

// HandlerResult is what a tool handler returns.
type HandlerResult struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Handler executes a tool. Handlers enforce their own timeouts and surface
// them as failed results; the pipeline recovers panics.
type Handler func(ctx context.Context, args map[string]any) (HandlerResult, error)

// Definition describes a registered tool. Definitions are read-only after
// registration.
type Definition struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	Operation        Operation      `json:"operation,omitempty"`
	RequiresApproval bool           `json:"requiresApproval,omitempty"`
	AllowInFastMode  bool           `json:"allowInFastMode,omitempty"`
	Handler          Handler        `json:"-"`
}

// ApprovalMode selects how aggressively the approval gate fires.
type ApprovalMode string

const (
	// ModeStrict requires approval for every non-read operation.
	ModeStrict ApprovalMode = "strict"
	// ModeBalanced requires approval for write, delete, and exec.
	ModeBalanced ApprovalMode = "balanced"
	// ModeFast auto-allows everything except exec commands outside the
	// fast allow-list.
	ModeFast ApprovalMode = "fast"
)

// Valid reports whether m is a known approval mode.
func (m ApprovalMode) Valid() bool {
	switch m {
	case ModeStrict, ModeBalanced, ModeFast:
		return true
	}
	return false
}

// Decision is the pipeline's policy verdict for one call.
type Decision string

const (
	DecisionAllow         Decision = "allow"
	DecisionBlock         Decision = "block"
	DecisionNeedsApproval Decision = "needs_approval"
)

// Status is the outcome surface returned to the caller.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusBlocked    Status = "blocked"
	StatusNeedsInput Status = "needs_input"
	StatusError      Status = "error"
)

// Policy carries the decision and its reason.
type Policy struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// Result is the pipeline's response for one tool invocation.
type Result struct {
	Status   Status         `json:"status"`
	ToolName string         `json:"toolName"`
	Message  string         `json:"message,omitempty"`
	Policy   Policy         `json:"policy"`
	Result   *HandlerResult `json:"result,omitempty"`
	Duration time.Duration  `json:"-"`
}
