package event

// Version is the envelope schema version. Every emitted envelope carries it
// and the deserializer rejects anything else.
const Version = "v1"

// Type identifies what happened. The set is closed: subscribers can rely on
// exhaustive switches over these values.
type Type string

const (
	TypeTurnStart          Type = "turn.start"
	TypeTurnEnd            Type = "turn.end"
	TypeAgentStart         Type = "agent.start"
	TypeAgentStop          Type = "agent.stop"
	TypeModelCall          Type = "model.call"
	TypeModelResult        Type = "model.result"
	TypeToolCall           Type = "tool.call"
	TypeToolResult         Type = "tool.result"
	TypeDiffProposed       Type = "diff.proposed"
	TypeDiffApproved       Type = "diff.approved"
	TypeDiffRejected       Type = "diff.rejected"
	TypeDiffApplied        Type = "diff.applied"
	TypeDiffRolledBack     Type = "diff.rolled_back"
	TypeDiffHunkApproved   Type = "diff.hunk.approved"
	TypeDiffHunkRejected   Type = "diff.hunk.rejected"
	TypePolicyWarn         Type = "policy.warn"
	TypePolicyBlock        Type = "policy.block"
	TypeTestRun            Type = "test.run"
	TypeTestResult         Type = "test.result"
	TypeCheckpointSaved    Type = "checkpoint.saved"
	TypeCheckpointRestored Type = "checkpoint.restored"
	TypeStateTransition    Type = "state.transition"
	TypeError              Type = "error"
	TypeUserInput          Type = "user.input"
	TypeUserApproval       Type = "user.approval"
)

var knownTypes = map[Type]struct{}{
	TypeTurnStart: {}, TypeTurnEnd: {},
	TypeAgentStart: {}, TypeAgentStop: {},
	TypeModelCall: {}, TypeModelResult: {},
	TypeToolCall: {}, TypeToolResult: {},
	TypeDiffProposed: {}, TypeDiffApproved: {}, TypeDiffRejected: {},
	TypeDiffApplied: {}, TypeDiffRolledBack: {},
	TypeDiffHunkApproved: {}, TypeDiffHunkRejected: {},
	TypePolicyWarn: {}, TypePolicyBlock: {},
	TypeTestRun: {}, TypeTestResult: {},
	TypeCheckpointSaved: {}, TypeCheckpointRestored: {},
	TypeStateTransition: {}, TypeError: {},
	TypeUserInput: {}, TypeUserApproval: {},
}

// Known reports whether t belongs to the closed event-type set.
func Known(t Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// Actor is the logical originator of an event.
type Actor string

const (
	ActorUser          Actor = "user"
	ActorPlanAgent     Actor = "plan_agent"
	ActorBuilderAgent  Actor = "builder_agent"
	ActorQAAgent       Actor = "qa_agent"
	ActorReviewAgent   Actor = "review_agent"
	ActorRefactorAgent Actor = "refactor_agent"
	ActorSystem        Actor = "system"
)
