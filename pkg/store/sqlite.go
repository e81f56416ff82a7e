package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/tabula/pkg/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	working_directory TEXT NOT NULL,
	status TEXT NOT NULL,
	config TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	envelope TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, created_at);

CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	state TEXT NOT NULL,
	description TEXT,
	opaque_data BLOB
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, timestamp);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	messages TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore persists runs to a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
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

	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, project_id, working_directory, status, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.WorkingDirectory, string(run.Status), string(config), run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, working_directory, status, config, created_at, updated_at, completed_at FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var status, config string
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.ProjectID, &run.WorkingDirectory, &status, &config, &run.CreatedAt, &run.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = RunStatus(status)
	if config != "" && config != "null" {
		if err := json.Unmarshal([]byte(config), &run.Config); err != nil {
			return nil, fmt.Errorf("failed to decode run config: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus) error {
	now := time.Now().UTC()
	var completedAt any
	if status == RunCompleted || status == RunFailed || status == RunCancelled {
		completedAt = now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(status), now, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, working_directory, status, config, created_at, updated_at, completed_at FROM runs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var run Run
		var status, config string
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.ProjectID, &run.WorkingDirectory, &status, &config, &run.CreatedAt, &run.UpdatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = RunStatus(status)
		if config != "" && config != "null" {
			if err := json.Unmarshal([]byte(config), &run.Config); err != nil {
				return nil, fmt.Errorf("failed to decode run config: %w", err)
			}
		}
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	// Owned records go with the run.
	for _, table := range []string{"events", "checkpoints", "sessions"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete run %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, env *event.Envelope) error {
	raw, err := env.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, envelope, created_at) VALUES (?, ?, ?, ?)`,
		env.EventID, env.RunID, string(raw), env.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, runID string) ([]*event.Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT envelope FROM events WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*event.Envelope
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		env, err := event.Parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored envelope: %w", err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, run_id, timestamp, state, description, opaque_data) VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.RunID, cp.Timestamp, cp.State, cp.Description, cp.OpaqueData)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, runID string) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, timestamp, state, description, opaque_data FROM checkpoints WHERE run_id = ? ORDER BY timestamp`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.ID, &cp.RunID, &cp.Timestamp, &cp.State, &cp.Description, &cp.OpaqueData); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetLatestCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, timestamp, state, description, opaque_data FROM checkpoints WHERE run_id = ? ORDER BY timestamp DESC LIMIT 1`, runID)

	var cp Checkpoint
	err := row.Scan(&cp.ID, &cp.RunID, &cp.Timestamp, &cp.State, &cp.Description, &cp.OpaqueData)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode session messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, run_id, messages, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		session.ID, session.RunID, string(messages), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, messages, created_at, updated_at FROM sessions WHERE id = ?`, id)

	var session Session
	var messages string
	err := row.Scan(&session.ID, &session.RunID, &messages, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &session.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode session messages: %w", err)
	}
	return &session, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
