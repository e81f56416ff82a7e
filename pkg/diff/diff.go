// Package diff implements hunk-level review of proposed edits: a user
// approves or rejects individual hunks, diff status derives from hunk
// statuses, and approved content is applied with a verifiable checksum.
package diff

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// HunkStatus is the review state of one hunk.
type HunkStatus string

const (
	HunkPending  HunkStatus = "pending"
	HunkApproved HunkStatus = "approved"
	HunkRejected HunkStatus = "rejected"
)

// Status is the review state of a whole diff. Applied and rolled_back are
// terminal and only set by the corresponding apply and rollback paths;
// everything else derives from the hunks.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusApplied    Status = "applied"
	StatusRolledBack Status = "rolled_back"
)

// Hunk is one contiguous change within a diff, addressable by its 1-based
// index.
type Hunk struct {
	HunkID   string     `json:"hunkId"`
	OldStart int        `json:"oldStart"`
	OldLines int        `json:"oldLines"`
	NewStart int        `json:"newStart"`
	NewLines int        `json:"newLines"`
	Content  string     `json:"content"`
	Status   HunkStatus `json:"status"`
}

// Diff is a proposed edit to one file, reviewed hunk by hunk.
type Diff struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath"`
	Hunks    []Hunk `json:"hunks"`

	// terminal holds applied or rolled_back once set; empty otherwise.
	terminal Status
}

// NewDiff creates a pending diff from proposed hunks. Hunks without an ID
// get one assigned; all start pending.
func NewDiff(filePath string, hunks []Hunk) *Diff {
	d := &Diff{
		ID:       uuid.NewString(),
		FilePath: filePath,
		Hunks:    make([]Hunk, len(hunks)),
	}
	copy(d.Hunks, hunks)
	for i := range d.Hunks {
		if d.Hunks[i].HunkID == "" {
			d.Hunks[i].HunkID = uuid.NewString()
		}
		d.Hunks[i].Status = HunkPending
	}
	return d
}

// Status derives the diff-level status: pending while any hunk is pending,
// rejected when nothing was approved and something was rejected, approved
// otherwise. A terminal status, once set, wins.
func (d *Diff) Status() Status {
	if d.terminal != "" {
		return d.terminal
	}

	approved, rejected := 0, 0
	for _, h := range d.Hunks {
		switch h.Status {
		case HunkPending:
			return StatusPending
		case HunkApproved:
			approved++
		case HunkRejected:
			rejected++
		}
	}
	if approved == 0 && rejected > 0 {
		return StatusRejected
	}
	return StatusApproved
}

// HasPending reports whether any hunk still awaits review.
func (d *Diff) HasPending() bool {
	for _, h := range d.Hunks {
		if h.Status == HunkPending {
			return true
		}
	}
	return false
}

// ApprovedContent concatenates approved hunk content in order.
func (d *Diff) ApprovedContent() string {
	var out string
	for _, h := range d.Hunks {
		if h.Status == HunkApproved {
			out += h.Content
		}
	}
	return out
}

// Checksum is the SHA-256 over the concatenated approved hunks, hex encoded.
// It lets the apply step be verified against what was reviewed.
func (d *Diff) Checksum() string {
	sum := sha256.Sum256([]byte(d.ApprovedContent()))
	return hex.EncodeToString(sum[:])
}

func (d *Diff) markApplied()    { d.terminal = StatusApplied }
func (d *Diff) markRolledBack() { d.terminal = StatusRolledBack }
