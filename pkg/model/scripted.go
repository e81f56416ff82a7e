package model

import (
	"context"
	"sync"
)

// ScriptedGateway replays a fixed sequence of responses. It backs the
// built-in agents in tests and local development: deterministic, offline,
// and cheap. After the script runs out, the last response repeats.
type ScriptedGateway struct {
	mu        sync.Mutex
	responses []CallResult
	index     int
	calls     int
}

// NewScriptedGateway builds a gateway from plain content strings.
func NewScriptedGateway(contents ...string) *ScriptedGateway {
	responses := make([]CallResult, len(contents))
	for i, content := range contents {
		responses[i] = CallResult{
			Content:      content,
			FinishReason: "stop",
			TokenUsage:   TokenUsage{CompletionTokens: len(content) / 4, TotalTokens: len(content) / 4},
		}
	}
	return &ScriptedGateway{responses: responses}
}

// NewScriptedGatewayResults builds a gateway from full results, for scripts
// that need tool calls or usage numbers.
func NewScriptedGatewayResults(responses ...CallResult) *ScriptedGateway {
	return &ScriptedGateway{responses: responses}
}

// Calls returns how many times Call or Stream has been invoked.
func (g *ScriptedGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *ScriptedGateway) next() CallResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.responses) == 0 {
		return CallResult{Content: "", FinishReason: "stop"}
	}
	resp := g.responses[g.index]
	if g.index < len(g.responses)-1 {
		g.index++
	}
	return resp
}

// Call implements Gateway.
func (g *ScriptedGateway) Call(ctx context.Context, messages []Message, tools []ToolSpec, config CallConfig) (*CallResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := g.next()
	if resp.TokenUsage.PromptTokens == 0 {
		resp.TokenUsage.PromptTokens = CountTokens(messages)
		resp.TokenUsage.TotalTokens = resp.TokenUsage.PromptTokens + resp.TokenUsage.CompletionTokens
	}
	return &resp, nil
}

// Stream implements Gateway by chunking the scripted content.
func (g *ScriptedGateway) Stream(ctx context.Context, messages []Message, tools []ToolSpec, config CallConfig) (<-chan StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := g.next()
	out := make(chan StreamChunk, 2)
	go func() {
		defer close(out)
		if resp.Content != "" {
			out <- StreamChunk{Type: ChunkContent, Text: resp.Content}
		}
		out <- StreamChunk{Type: ChunkDone}
	}()
	return out, nil
}

// TokenCount implements Gateway.
func (g *ScriptedGateway) TokenCount(messages []Message) int {
	return CountTokens(messages)
}

var _ Gateway = (*ScriptedGateway)(nil)
