package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

func twoHunks() []Hunk {
	return []Hunk{
		{OldStart: 1, OldLines: 2, NewStart: 1, NewLines: 3, Content: "+import fs\n"},
		{OldStart: 10, OldLines: 1, NewStart: 11, NewLines: 2, Content: "+export foo\n"},
	}
}

func newTestReviewer(t *testing.T, state workflow.State) (*Reviewer, *event.Bus, *workflow.Machine) {
	t.Helper()
	machine := workflow.NewMachine(state)
	bus := event.NewBus("run-1", string(state))
	reviewer := NewReviewer(bus, machine.Current, func(to workflow.State, reason string) bool {
		ok := machine.Transition(to, reason)
		if ok {
			bus.SetState(string(to))
		}
		return ok
	})
	return reviewer, bus, machine
}

func TestDiff_StatusDerivation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HunkStatus
		want     Status
	}{
		{"all pending", []HunkStatus{HunkPending, HunkPending}, StatusPending},
		{"one pending", []HunkStatus{HunkApproved, HunkPending}, StatusPending},
		{"all approved", []HunkStatus{HunkApproved, HunkApproved}, StatusApproved},
		{"mixed resolved", []HunkStatus{HunkApproved, HunkRejected}, StatusApproved},
		{"all rejected", []HunkStatus{HunkRejected, HunkRejected}, StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDiff("a.ts", twoHunks())
			for i, s := range tt.statuses {
				d.Hunks[i].Status = s
			}
			assert.Equal(t, tt.want, d.Status())
		})
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		input   string
		count   int
		all     bool
		indices []int
		wantErr bool
	}{
		{"", 3, true, nil, false},
		{"all", 3, true, nil, false},
		{"ALL", 3, true, nil, false},
		{"1", 3, false, []int{1}, false},
		{"1,3", 3, false, []int{1, 3}, false},
		{"1 3", 3, false, []int{1, 3}, false},
		{"2, 2", 3, false, []int{2}, false},
		{"0", 3, false, nil, true},
		{"4", 3, false, nil, true},
		{"one", 3, false, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sel, err := ParseSelection(tt.input, tt.count)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.all, sel.All)
			assert.Equal(t, tt.indices, sel.Indices)
		})
	}
}

func TestApprove_PartialSelectionRejectsRest(t *testing.T) {
	reviewer, bus, machine := newTestReviewer(t, workflow.StateImplementing)
	d, err := reviewer.Propose("src/index.ts", twoHunks())
	require.NoError(t, err)

	result, err := reviewer.Approve("1")
	require.NoError(t, err)

	assert.Equal(t, []int{1}, result.Approved)
	assert.Equal(t, []int{2}, result.Rejected)
	assert.Equal(t, HunkApproved, d.Hunks[0].Status)
	assert.Equal(t, HunkRejected, d.Hunks[1].Status)
	assert.Equal(t, StatusApplied, d.Status())
	assert.NotEmpty(t, result.Checksum)

	require.Len(t, bus.LogByType(event.TypeDiffApproved), 1)
	require.Len(t, bus.LogByType(event.TypeDiffApplied), 1)
	require.Len(t, bus.LogByType(event.TypeDiffHunkApproved), 1)

	rejected := bus.LogByType(event.TypeDiffHunkRejected)
	require.Len(t, rejected, 1)
	payload := rejected[0].Payload.(map[string]any)
	assert.Equal(t, "Not selected during partial approval", payload["reason"])

	// Applying a diff while implementing advances the run to QA.
	assert.Equal(t, workflow.StateQA, machine.Current())
}

func TestApprove_AllApprovesEveryPendingHunk(t *testing.T) {
	reviewer, bus, _ := newTestReviewer(t, workflow.StateImplementing)
	d, err := reviewer.Propose("src/index.ts", twoHunks())
	require.NoError(t, err)

	result, err := reviewer.Approve("all")
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, result.Approved)
	assert.Empty(t, result.Rejected)
	assert.Equal(t, StatusApplied, d.Status())
	assert.Len(t, bus.LogByType(event.TypeDiffHunkApproved), 2)
	assert.Empty(t, bus.LogByType(event.TypeDiffHunkRejected))
}

func TestApprove_ChecksumCoversApprovedContentOnly(t *testing.T) {
	reviewer, bus, _ := newTestReviewer(t, workflow.StateImplementing)
	_, err := reviewer.Propose("src/index.ts", twoHunks())
	require.NoError(t, err)

	result, err := reviewer.Approve("1")
	require.NoError(t, err)

	expected := NewDiff("x", []Hunk{{Content: "+import fs\n"}})
	expected.Hunks[0].Status = HunkApproved
	assert.Equal(t, expected.Checksum(), result.Checksum)

	applied := bus.LogByType(event.TypeDiffApplied)[0].Payload.(map[string]any)
	assert.Equal(t, result.Checksum, applied["checksum"])
}

func TestApprove_InQADoesNotTransition(t *testing.T) {
	reviewer, _, machine := newTestReviewer(t, workflow.StateQA)
	_, err := reviewer.Propose("fix.ts", twoHunks())
	require.NoError(t, err)

	_, err = reviewer.Approve("all")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateQA, machine.Current())
}

func TestApprove_NoPendingDiff(t *testing.T) {
	reviewer, _, _ := newTestReviewer(t, workflow.StateImplementing)
	_, err := reviewer.Approve("all")
	assert.ErrorIs(t, err, ErrNoPendingDiff)
}

func TestReviewCommands_BlockedOutsideImplementingAndQA(t *testing.T) {
	reviewer, _, _ := newTestReviewer(t, workflow.StatePlanDrafted)
	_, err := reviewer.Propose("a.ts", twoHunks())
	assert.Error(t, err)

	_, err = reviewer.Approve("all")
	assert.Error(t, err)
}

func TestReject_AllClosesDiff(t *testing.T) {
	reviewer, bus, _ := newTestReviewer(t, workflow.StateImplementing)
	d, err := reviewer.Propose("src/index.ts", twoHunks())
	require.NoError(t, err)

	result, err := reviewer.Reject("all")
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, result.Rejected)
	assert.Equal(t, StatusRejected, d.Status())
	assert.Len(t, bus.LogByType(event.TypeDiffHunkRejected), 2)
	assert.Len(t, bus.LogByType(event.TypeDiffRejected), 1)
}

func TestReject_PartialKeepsDiffOpen(t *testing.T) {
	reviewer, bus, _ := newTestReviewer(t, workflow.StateImplementing)
	d, err := reviewer.Propose("src/index.ts", twoHunks())
	require.NoError(t, err)

	_, err = reviewer.Reject("2")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, d.Status())
	assert.Empty(t, bus.LogByType(event.TypeDiffRejected))
	assert.Same(t, d, reviewer.Current())
}

func TestReject_LastPendingHunkClosesDiff(t *testing.T) {
	reviewer, bus, _ := newTestReviewer(t, workflow.StateImplementing)
	_, err := reviewer.Propose("src/index.ts", twoHunks())
	require.NoError(t, err)

	_, err = reviewer.Reject("1")
	require.NoError(t, err)
	_, err = reviewer.Reject("2")
	require.NoError(t, err)

	assert.Len(t, bus.LogByType(event.TypeDiffRejected), 1)
}

func TestCurrent_FirstPendingDiffInInsertionOrder(t *testing.T) {
	reviewer, _, _ := newTestReviewer(t, workflow.StateImplementing)
	first, err := reviewer.Propose("a.ts", twoHunks())
	require.NoError(t, err)
	second, err := reviewer.Propose("b.ts", twoHunks())
	require.NoError(t, err)

	assert.Same(t, first, reviewer.Current())

	_, err = reviewer.Approve("all")
	require.NoError(t, err)
	assert.Same(t, second, reviewer.Current())
}

func TestRollback(t *testing.T) {
	reviewer, bus, _ := newTestReviewer(t, workflow.StateQA)
	d, err := reviewer.Propose("src/index.ts", twoHunks())
	require.NoError(t, err)

	// Only applied diffs can roll back.
	require.Error(t, reviewer.Rollback(d.ID))

	_, err = reviewer.Approve("all")
	require.NoError(t, err)
	require.NoError(t, reviewer.Rollback(d.ID))

	assert.Equal(t, StatusRolledBack, d.Status())
	assert.Len(t, bus.LogByType(event.TypeDiffRolledBack), 1)
	assert.Error(t, reviewer.Rollback("nope"))
}
