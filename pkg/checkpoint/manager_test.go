package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/store"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

type snapshot struct {
	MessageCount int `json:"messageCount"`
}

func newManager(t *testing.T) (*Manager, *event.Bus, *workflow.Machine) {
	t.Helper()
	machine := workflow.NewMachine(workflow.StateImplementing)
	bus := event.NewBus("run-1", string(machine.Current()))
	return NewManager(store.NewMemoryStore(), bus, "run-1"), bus, machine
}

func TestManager_SaveAndRestore(t *testing.T) {
	m, bus, machine := newManager(t)
	ctx := context.Background()

	cp, err := m.Save(ctx, machine.Current(), "before qa", snapshot{MessageCount: 4})
	require.NoError(t, err)
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, "IMPLEMENTING", cp.State)
	require.Len(t, bus.LogByType(event.TypeCheckpointSaved), 1)

	// Drift the machine, then restore.
	require.True(t, machine.Transition(workflow.StateQA, "tests"))
	require.True(t, machine.Transition(workflow.StateReview, "qa passed"))

	var got snapshot
	restored, err := m.Restore(ctx, cp.ID, machine, &got)
	require.NoError(t, err)
	assert.Equal(t, cp.ID, restored.ID)
	assert.Equal(t, workflow.StateImplementing, machine.Current())
	assert.Equal(t, 4, got.MessageCount)
	require.Len(t, bus.LogByType(event.TypeCheckpointRestored), 1)
}

func TestManager_RestoreLatest(t *testing.T) {
	m, _, machine := newManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, workflow.StateImplementing, "first", nil)
	require.NoError(t, err)
	_, err = m.Save(ctx, workflow.StateQA, "second", nil)
	require.NoError(t, err)

	cp, err := m.RestoreLatest(ctx, machine, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", cp.Description)
	assert.Equal(t, workflow.StateQA, machine.Current())
}

func TestManager_RestoreUnknownCheckpoint(t *testing.T) {
	m, _, machine := newManager(t)

	_, err := m.Restore(context.Background(), "missing", machine, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
	// A failed restore leaves the machine untouched.
	assert.Equal(t, workflow.StateImplementing, machine.Current())
}

func TestManager_RestoreLatestWithoutCheckpoints(t *testing.T) {
	m, _, machine := newManager(t)
	_, err := m.RestoreLatest(context.Background(), machine, nil)
	assert.Error(t, err)
}
