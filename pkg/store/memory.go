package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/tabula/pkg/event"
	"github.com/kadirpekel/tabula/pkg/model"
)

// MemoryStore is the in-memory Store used when no database is configured
// and in tests. It satisfies the same contracts as the SQLite store.
type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[string]*Run
	runOrder    []string
	events      map[string][]*event.Envelope
	checkpoints map[string][]*Checkpoint
	sessions    map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]*Run),
		events:      make(map[string][]*event.Envelope),
		checkpoints: make(map[string][]*Checkpoint),
		sessions:    make(map[string]*Session),
	}
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = RunRunning
	}

	stored := *run
	s.runs[run.ID] = &stored
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *run
	return &out, nil
}

func (s *MemoryStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = status
	run.UpdatedAt = now
	if status == RunCompleted || status == RunFailed || status == RunCancelled {
		run.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) ListRuns(ctx context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, len(s.runOrder))
	for _, id := range s.runOrder {
		run := *s.runs[id]
		out = append(out, &run)
	}
	return out, nil
}

func (s *MemoryStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return ErrNotFound
	}
	delete(s.runs, id)
	delete(s.events, id)
	delete(s.checkpoints, id)
	for sessionID, session := range s.sessions {
		if session.RunID == id {
			delete(s.sessions, sessionID)
		}
	}
	for i, runID := range s.runOrder {
		if runID == id {
			s.runOrder = append(s.runOrder[:i], s.runOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) SaveEvent(ctx context.Context, env *event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[env.RunID] = append(s.events[env.RunID], env)
	return nil
}

func (s *MemoryStore) GetEvents(ctx context.Context, runID string) ([]*event.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*event.Envelope, len(s.events[runID]))
	copy(out, s.events[runID])
	return out, nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	stored := *cp
	s.checkpoints[cp.RunID] = append(s.checkpoints[cp.RunID], &stored)
	return nil
}

func (s *MemoryStore) ListCheckpoints(ctx context.Context, runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Checkpoint, len(s.checkpoints[runID]))
	copy(out, s.checkpoints[runID])
	return out, nil
}

func (s *MemoryStore) GetLatestCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cps := s.checkpoints[runID]
	if len(cps) == 0 {
		return nil, ErrNotFound
	}
	out := *cps[len(cps)-1]
	return &out, nil
}

func (s *MemoryStore) SaveSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	stored := *session
	stored.Messages = make([]model.Message, len(session.Messages))
	copy(stored.Messages, session.Messages)
	s.sessions[session.ID] = &stored
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *session
	out.Messages = make([]model.Message, len(session.Messages))
	copy(out.Messages, session.Messages)
	return &out, nil
}

func (s *MemoryStore) Close() error { return nil }
