// Package model defines the gateway contract the runtime consumes from
// model-provider adapters. The core never talks to a provider directly: it
// sees messages in, content and tool calls out, plus token accounting and a
// retry taxonomy for provider errors. Fallback routing between providers is
// the gateway's business; the core only observes it through events.
package model

import (
	"context"
	"time"
)

// Role tags a transcript message with its author kind.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one transcript entry handed to the gateway.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ToolSpec describes a tool the model may call, with a JSON-schema
// parameter object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCallRequest is a tool invocation the model asked for.
type ToolCallRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// TokenUsage is the gateway-reported token accounting for one call.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CallConfig tunes one gateway call.
type CallConfig struct {
	Model       string  `json:"model"`
	Profile     string  `json:"profile,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// CallResult is the blocking-call response surface.
type CallResult struct {
	Content      string            `json:"content"`
	ToolCalls    []ToolCallRequest `json:"toolCalls,omitempty"`
	TokenUsage   TokenUsage        `json:"tokenUsage"`
	FinishReason string            `json:"finishReason"`
	LatencyMs    int64             `json:"latencyMs"`
}

// ChunkType discriminates streaming chunks.
type ChunkType string

const (
	ChunkContent ChunkType = "content"
	ChunkDone    ChunkType = "done"
	ChunkError   ChunkType = "error"
)

// StreamChunk is one unit of a streamed response.
type StreamChunk struct {
	Type ChunkType
	Text string
	Err  error
}

// Gateway is the provider contract the core consumes.
type Gateway interface {
	// Call performs a blocking completion.
	Call(ctx context.Context, messages []Message, tools []ToolSpec, config CallConfig) (*CallResult, error)

	// Stream performs a streaming completion. The channel is closed after a
	// done or error chunk.
	Stream(ctx context.Context, messages []Message, tools []ToolSpec, config CallConfig) (<-chan StreamChunk, error)

	// TokenCount estimates the prompt token footprint of the messages.
	TokenCount(messages []Message) int
}

// RetryDecision is what a caller should do about a provider error.
type RetryDecision string

const (
	RetryNow     RetryDecision = "retry"
	RetryBackoff RetryDecision = "backoff"
	RetryFail    RetryDecision = "fail"
)

// ErrorClass is the classification of a provider error.
type ErrorClass struct {
	Type          string        `json:"type"`
	RetryDecision RetryDecision `json:"retryDecision"`
	RetryAfter    time.Duration `json:"retryAfter,omitempty"`
}
