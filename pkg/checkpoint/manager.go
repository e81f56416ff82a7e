// Package checkpoint saves and restores run snapshots through the
// persistence port. A checkpoint captures the workflow state plus an opaque
// payload the orchestrator uses to rehydrate its transcript and counters.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/store"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// Manager creates and restores checkpoints for one run.
type Manager struct {
	store store.Store
	bus   *event.Bus
	runID string
}

// NewManager creates a checkpoint manager bound to a run.
func NewManager(s store.Store, bus *event.Bus, runID string) *Manager {
	return &Manager{store: s, bus: bus, runID: runID}
}

// Save captures the current workflow state and the opaque snapshot, persists
// the checkpoint, and emits checkpoint.saved.
func (m *Manager) Save(ctx context.Context, state workflow.State, description string, snapshot any) (*store.Checkpoint, error) {
	opaque, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint snapshot: %w", err)
	}

	cp := &store.Checkpoint{
		RunID:       m.runID,
		State:       string(state),
		Description: description,
		OpaqueData:  opaque,
	}
	if err := m.store.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.emit(event.TypeCheckpointSaved, map[string]any{
		"checkpointId": cp.ID,
		"state":        cp.State,
		"description":  cp.Description,
	})
	slog.Info("checkpoint saved", "checkpoint_id", cp.ID, "run_id", m.runID, "state", cp.State)
	return cp, nil
}

// Restore loads a checkpoint by ID, forces the machine back to its state,
// and decodes the opaque snapshot into out (which may be nil).
func (m *Manager) Restore(ctx context.Context, id string, machine *workflow.Machine, out any) (*store.Checkpoint, error) {
	cps, err := m.store.ListCheckpoints(ctx, m.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var cp *store.Checkpoint
	for _, candidate := range cps {
		if candidate.ID == id {
			cp = candidate
			break
		}
	}
	if cp == nil {
		return nil, fmt.Errorf("checkpoint %s: %w", id, store.ErrNotFound)
	}
	return m.restore(cp, machine, out)
}

// RestoreLatest restores the most recent checkpoint of the run.
func (m *Manager) RestoreLatest(ctx context.Context, machine *workflow.Machine, out any) (*store.Checkpoint, error) {
	cp, err := m.store.GetLatestCheckpoint(ctx, m.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return m.restore(cp, machine, out)
}

func (m *Manager) restore(cp *store.Checkpoint, machine *workflow.Machine, out any) (*store.Checkpoint, error) {
	state := workflow.State(cp.State)
	if !state.Valid() {
		return nil, fmt.Errorf("checkpoint %s holds unknown state %q", cp.ID, cp.State)
	}
	if out != nil && len(cp.OpaqueData) > 0 {
		if err := json.Unmarshal(cp.OpaqueData, out); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint snapshot: %w", err)
		}
	}

	// Restore is the one caller allowed to bypass edge validation.
	machine.ForceTransition(state, "checkpoint restore")
	m.bus.SetState(cp.State)

	m.emit(event.TypeCheckpointRestored, map[string]any{
		"checkpointId": cp.ID,
		"state":        cp.State,
	})
	slog.Info("checkpoint restored", "checkpoint_id", cp.ID, "run_id", m.runID, "state", cp.State)
	return cp, nil
}

// List returns the run's checkpoints in save order.
func (m *Manager) List(ctx context.Context) ([]*store.Checkpoint, error) {
	return m.store.ListCheckpoints(ctx, m.runID)
}

func (m *Manager) emit(t event.Type, payload map[string]any) {
	if _, err := m.bus.Emit(t, payload, event.EmitOptions{}); err != nil {
		slog.Warn("event emit failed", "type", t, "error", err)
	}
}
