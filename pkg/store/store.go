// Package store defines the persistence port for runs, events, checkpoints,
// and sessions, with in-memory and SQLite implementations. The runtime
// treats the store as a best-effort sink: it must work identically whether
// events are persisted or not.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/model"
)

// ErrNotFound is returned when a run, checkpoint, or session does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle status of a run record.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is the top-level record owning events, checkpoints, and sessions.
type Run struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"projectId"`
	WorkingDirectory string         `json:"workingDirectory"`
	Status           RunStatus      `json:"status"`
	Config           map[string]any `json:"config,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// Checkpoint captures enough of a run to rehydrate its workflow state.
// Checkpoints are immutable once saved.
type Checkpoint struct {
	ID          string    `json:"id"`
	RunID       string    `json:"runId"`
	Timestamp   time.Time `json:"timestamp"`
	State       string    `json:"state"`
	Description string    `json:"description,omitempty"`
	OpaqueData  []byte    `json:"opaqueData,omitempty"`
}

// Session is a conversation transcript attached to a run.
type Session struct {
	ID        string          `json:"id"`
	RunID     string          `json:"runId"`
	Messages  []model.Message `json:"messages"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store is the persistence port. Implementations must tolerate concurrent
// callers; the runtime never depends on a store being available.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus) error
	ListRuns(ctx context.Context) ([]*Run, error)
	// DeleteRun removes the run and everything it owns.
	DeleteRun(ctx context.Context, id string) error

	SaveEvent(ctx context.Context, env *event.Envelope) error
	GetEvents(ctx context.Context, runID string) ([]*event.Envelope, error)

	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	ListCheckpoints(ctx context.Context, runID string) ([]*Checkpoint, error)
	GetLatestCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)

	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)

	Close() error
}
