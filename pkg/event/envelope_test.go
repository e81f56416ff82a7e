package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnvelopeJSON() string {
	return `{
		"eventVersion": "v1",
		"runId": "run-1",
		"eventId": "evt-1",
		"timestamp": "2026-08-24T10:00:00Z",
		"state": "IMPLEMENTING",
		"actor": "builder_agent",
		"type": "tool.call",
		"correlationId": "corr-1",
		"payload": {"toolName": "fs_write"},
		"redactionLevel": "none"
	}`
}

func TestParse_Valid(t *testing.T) {
	env, err := Parse([]byte(validEnvelopeJSON()))
	require.NoError(t, err)

	assert.Equal(t, "v1", env.EventVersion)
	assert.Equal(t, "run-1", env.RunID)
	assert.Equal(t, TypeToolCall, env.Type)
	assert.Equal(t, Actor("builder_agent"), env.Actor)
	assert.Equal(t, "IMPLEMENTING", env.State)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{{`},
		{"wrong version", `{"eventVersion":"v2","runId":"r","eventId":"e","timestamp":"2026-08-24T10:00:00Z","state":"QA","actor":"system","type":"error","correlationId":"c"}`},
		{"missing runId", `{"eventVersion":"v1","eventId":"e","timestamp":"2026-08-24T10:00:00Z","state":"QA","actor":"system","type":"error","correlationId":"c"}`},
		{"numeric eventId", `{"eventVersion":"v1","runId":"r","eventId":42,"timestamp":"2026-08-24T10:00:00Z","state":"QA","actor":"system","type":"error","correlationId":"c"}`},
		{"missing type", `{"eventVersion":"v1","runId":"r","eventId":"e","timestamp":"2026-08-24T10:00:00Z","state":"QA","actor":"system","correlationId":"c"}`},
		{"unknown type", `{"eventVersion":"v1","runId":"r","eventId":"e","timestamp":"2026-08-24T10:00:00Z","state":"QA","actor":"system","type":"made.up","correlationId":"c"}`},
		{"empty state", `{"eventVersion":"v1","runId":"r","eventId":"e","timestamp":"2026-08-24T10:00:00Z","state":"","actor":"system","type":"error","correlationId":"c"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	bus := NewBus("run-1", "QA")
	emitted, err := bus.Emit(TypeTestResult, map[string]any{"passed": float64(1)}, EmitOptions{Actor: ActorQAAgent})
	require.NoError(t, err)

	data, err := emitted.JSON()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, emitted.EventID, parsed.EventID)
	assert.Equal(t, emitted.Type, parsed.Type)
	assert.Equal(t, emitted.Actor, parsed.Actor)
}

func TestKnown(t *testing.T) {
	for _, typ := range []Type{
		TypeTurnStart, TypeTurnEnd, TypeAgentStart, TypeAgentStop,
		TypeModelCall, TypeModelResult, TypeToolCall, TypeToolResult,
		TypeDiffProposed, TypeDiffApproved, TypeDiffRejected, TypeDiffApplied,
		TypeDiffRolledBack, TypeDiffHunkApproved, TypeDiffHunkRejected,
		TypePolicyWarn, TypePolicyBlock, TypeTestRun, TypeTestResult,
		TypeCheckpointSaved, TypeCheckpointRestored, TypeStateTransition,
		TypeError, TypeUserInput, TypeUserApproval,
	} {
		assert.True(t, Known(typ), "type %s must be known", typ)
	}
	assert.False(t, Known("tool.explode"))
}
