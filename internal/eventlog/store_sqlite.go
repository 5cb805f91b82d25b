package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// SQLiteStore is a single-node, file-backed Store (store.driver = "sqlite").
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) a SQLite-backed Store at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		design_id TEXT NOT NULL,
		pattern TEXT DEFAULT '',
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		result_data TEXT DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS execution_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		block_id TEXT DEFAULT '',
		agent_name TEXT DEFAULT '',
		payload TEXT DEFAULT '{}',
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (execution_id) REFERENCES executions(execution_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_execution_id ON execution_events(execution_id);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON execution_events(execution_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveExecution implements Store.
func (s *SQLiteStore) SaveExecution(ctx context.Context, exec *v1.Execution) error {
	resultData, err := json.Marshal(exec.ResultData)
	if err != nil {
		resultData = []byte("{}")
	}

	var completedAt interface{}
	if exec.CompletedAt != nil {
		completedAt = *exec.CompletedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, design_id, pattern, status, started_at, completed_at, result_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			result_data = excluded.result_data
	`, exec.ExecutionID, exec.DesignID, string(exec.Pattern), string(exec.Status), exec.StartedAt, completedAt, string(resultData))
	return err
}

// GetExecution implements Store.
func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*v1.Execution, error) {
	var exec v1.Execution
	var pattern string
	var status string
	var completedAt sql.NullTime
	var resultData string

	err := s.db.QueryRowContext(ctx, `
		SELECT execution_id, design_id, pattern, status, started_at, completed_at, result_data
		FROM executions WHERE execution_id = ?
	`, executionID).Scan(&exec.ExecutionID, &exec.DesignID, &pattern, &status, &exec.StartedAt, &completedAt, &resultData)

	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("execution", executionID)
	}
	if err != nil {
		return nil, err
	}

	exec.Pattern = v1.Pattern(pattern)
	exec.Status = v1.ExecutionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		exec.CompletedAt = &t
	}
	_ = json.Unmarshal([]byte(resultData), &exec.ResultData)
	return &exec, nil
}

// AppendEvent implements Store.
func (s *SQLiteStore) AppendEvent(ctx context.Context, executionID string, event v1.ExecutionEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		payload = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_events (execution_id, kind, block_id, agent_name, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, executionID, string(event.Kind), event.BlockID, event.AgentName, string(payload), event.Timestamp)
	return err
}

// GetEvents implements Store.
func (s *SQLiteStore) GetEvents(ctx context.Context, executionID string, limit int, since time.Time) ([]v1.ExecutionEvent, error) {
	query := `
		SELECT kind, block_id, agent_name, payload, timestamp
		FROM execution_events WHERE execution_id = ? AND timestamp > ?
		ORDER BY id ASC
	`
	args := []interface{}{executionID, since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []v1.ExecutionEvent
	for rows.Next() {
		var e v1.ExecutionEvent
		var kind string
		var payload string
		if err := rows.Scan(&kind, &e.BlockID, &e.AgentName, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = v1.EventKind(kind)
		_ = json.Unmarshal([]byte(payload), &e.Payload)
		out = append(out, e)
	}
	return out, rows.Err()
}
