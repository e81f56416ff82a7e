package diff

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// ErrNoPendingDiff is returned by review commands when no diff has a
// pending hunk.
var ErrNoPendingDiff = errors.New("no diff pending review")

// rejectNotSelected is the reason recorded on hunks implicitly rejected by
// a partial approval.
const rejectNotSelected = "Not selected during partial approval"

// ReviewResult reports what a review command did.
type ReviewResult struct {
	Diff     *Diff
	Approved []int
	Rejected []int
	Applied  bool
	Checksum string
}

// Reviewer owns the ordered set of proposed diffs for one run and drives
// hunk-level review. The first diff with a pending hunk, in insertion
// order, is the current review target.
type Reviewer struct {
	bus        *event.Bus
	state      func() workflow.State
	transition func(to workflow.State, reason string) bool

	mu    sync.Mutex
	diffs []*Diff
}

// NewReviewer creates a reviewer bound to the orchestrator's state machine.
// state reports the current workflow state; transition requests a state
// change and reports whether it was legal.
func NewReviewer(bus *event.Bus, state func() workflow.State, transition func(workflow.State, string) bool) *Reviewer {
	return &Reviewer{bus: bus, state: state, transition: transition}
}

// Propose registers a new diff for review and emits diff.proposed. Diff
// commands are only legal while implementing or in QA.
func (r *Reviewer) Propose(filePath string, hunks []Hunk) (*Diff, error) {
	if err := r.checkAuthority(); err != nil {
		return nil, err
	}
	if len(hunks) == 0 {
		return nil, fmt.Errorf("diff for %s has no hunks", filePath)
	}

	d := NewDiff(filePath, hunks)

	r.mu.Lock()
	r.diffs = append(r.diffs, d)
	r.mu.Unlock()

	_, _ = r.bus.Emit(event.TypeDiffProposed, map[string]any{
		"diffId":    d.ID,
		"filePath":  d.FilePath,
		"hunkCount": len(d.Hunks),
	}, event.EmitOptions{Actor: event.ActorBuilderAgent})
	return d, nil
}

// Current returns the first diff with a pending hunk, or nil.
func (r *Reviewer) Current() *Diff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked()
}

func (r *Reviewer) currentLocked() *Diff {
	for _, d := range r.diffs {
		if d.HasPending() {
			return d
		}
	}
	return nil
}

// Diffs returns all registered diffs in insertion order.
func (r *Reviewer) Diffs() []*Diff {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Diff, len(r.diffs))
	copy(out, r.diffs)
	return out
}

// Approve approves the selected hunks of the current diff and applies the
// approved content. An explicit index selection implicitly rejects every
// other pending hunk. Approving while implementing advances the run to QA.
func (r *Reviewer) Approve(selection string) (*ReviewResult, error) {
	if err := r.checkAuthority(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	d := r.currentLocked()
	if d == nil {
		r.mu.Unlock()
		return nil, ErrNoPendingDiff
	}

	sel, err := ParseSelection(selection, len(d.Hunks))
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	result := &ReviewResult{Diff: d}
	type hunkEvent struct {
		t       event.Type
		payload map[string]any
	}
	var pending []hunkEvent

	for i := range d.Hunks {
		h := &d.Hunks[i]
		if h.Status != HunkPending {
			continue
		}
		index := i + 1
		if sel.Contains(index) {
			h.Status = HunkApproved
			result.Approved = append(result.Approved, index)
			pending = append(pending, hunkEvent{event.TypeDiffHunkApproved, map[string]any{
				"diffId": d.ID, "hunkId": h.HunkID, "index": index,
			}})
		} else if !sel.All {
			h.Status = HunkRejected
			result.Rejected = append(result.Rejected, index)
			pending = append(pending, hunkEvent{event.TypeDiffHunkRejected, map[string]any{
				"diffId": d.ID, "hunkId": h.HunkID, "index": index, "reason": rejectNotSelected,
			}})
		}
	}

	result.Checksum = d.Checksum()
	result.Applied = true
	d.markApplied()
	r.mu.Unlock()

	for _, e := range pending {
		r.emit(e.t, e.payload)
	}
	r.emit(event.TypeDiffApproved, map[string]any{"diffId": d.ID})
	r.emit(event.TypeDiffApplied, map[string]any{
		"diffId":   d.ID,
		"filePath": d.FilePath,
		"checksum": result.Checksum,
	})

	if r.state() == workflow.StateImplementing {
		r.transition(workflow.StateQA, "diff applied")
	}
	return result, nil
}

// Reject rejects the selected hunks of the current diff. Rejecting all of
// them, or emptying the pending set, closes the diff with diff.rejected.
func (r *Reviewer) Reject(selection string) (*ReviewResult, error) {
	if err := r.checkAuthority(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	d := r.currentLocked()
	if d == nil {
		r.mu.Unlock()
		return nil, ErrNoPendingDiff
	}

	sel, err := ParseSelection(selection, len(d.Hunks))
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	result := &ReviewResult{Diff: d}
	var rejectedHunks []map[string]any
	for i := range d.Hunks {
		h := &d.Hunks[i]
		if h.Status != HunkPending || !sel.Contains(i+1) {
			continue
		}
		h.Status = HunkRejected
		result.Rejected = append(result.Rejected, i+1)
		rejectedHunks = append(rejectedHunks, map[string]any{
			"diffId": d.ID, "hunkId": h.HunkID, "index": i + 1,
		})
	}
	closed := sel.All || !d.HasPending()
	r.mu.Unlock()

	for _, payload := range rejectedHunks {
		r.emit(event.TypeDiffHunkRejected, payload)
	}
	if closed {
		r.emit(event.TypeDiffRejected, map[string]any{"diffId": d.ID})
	}
	return result, nil
}

// Rollback marks an applied diff rolled back and emits diff.rolled_back.
func (r *Reviewer) Rollback(diffID string) error {
	r.mu.Lock()
	var target *Diff
	for _, d := range r.diffs {
		if d.ID == diffID {
			target = d
			break
		}
	}
	if target == nil {
		r.mu.Unlock()
		return fmt.Errorf("unknown diff %s", diffID)
	}
	if target.Status() != StatusApplied {
		r.mu.Unlock()
		return fmt.Errorf("diff %s is %s, only applied diffs roll back", diffID, target.Status())
	}
	target.markRolledBack()
	r.mu.Unlock()

	r.emit(event.TypeDiffRolledBack, map[string]any{
		"diffId":   target.ID,
		"filePath": target.FilePath,
	})
	return nil
}

func (r *Reviewer) checkAuthority() error {
	state := r.state()
	if state != workflow.StateImplementing && state != workflow.StateQA {
		return fmt.Errorf("diff commands are not allowed in state %s", state)
	}
	return nil
}

func (r *Reviewer) emit(t event.Type, payload map[string]any) {
	_, _ = r.bus.Emit(t, payload, event.EmitOptions{Actor: event.ActorUser})
}
