package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// PostgresStore is a shared, multi-process Store (store.driver = "postgres"),
// appropriate once conductor runs more than one API replica against one
// event log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and migrates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres store: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing postgres schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		design_id TEXT NOT NULL DEFAULT '',
		pattern TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		result_data JSONB NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS execution_events (
		id BIGSERIAL PRIMARY KEY,
		execution_id TEXT NOT NULL REFERENCES executions(execution_id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		block_id TEXT NOT NULL DEFAULT '',
		agent_name TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL DEFAULT '{}',
		timestamp TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_execution_id ON execution_events(execution_id);
	CREATE INDEX IF NOT EXISTS idx_events_execution_timestamp ON execution_events(execution_id, timestamp);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// SaveExecution implements Store.
func (s *PostgresStore) SaveExecution(ctx context.Context, exec *v1.Execution) error {
	resultData, err := json.Marshal(exec.ResultData)
	if err != nil {
		resultData = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (execution_id, design_id, pattern, status, started_at, completed_at, result_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			result_data = EXCLUDED.result_data
	`, exec.ExecutionID, exec.DesignID, string(exec.Pattern), string(exec.Status), exec.StartedAt, exec.CompletedAt, resultData)
	return err
}

// GetExecution implements Store.
func (s *PostgresStore) GetExecution(ctx context.Context, executionID string) (*v1.Execution, error) {
	var exec v1.Execution
	var pattern, status string
	var resultData []byte

	err := s.pool.QueryRow(ctx, `
		SELECT execution_id, design_id, pattern, status, started_at, completed_at, result_data
		FROM executions WHERE execution_id = $1
	`, executionID).Scan(&exec.ExecutionID, &exec.DesignID, &pattern, &status, &exec.StartedAt, &exec.CompletedAt, &resultData)

	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("execution", executionID)
	}
	if err != nil {
		return nil, err
	}

	exec.Pattern = v1.Pattern(pattern)
	exec.Status = v1.ExecutionStatus(status)
	_ = json.Unmarshal(resultData, &exec.ResultData)
	return &exec, nil
}

// AppendEvent implements Store.
func (s *PostgresStore) AppendEvent(ctx context.Context, executionID string, event v1.ExecutionEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		payload = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_events (execution_id, kind, block_id, agent_name, payload, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, executionID, string(event.Kind), event.BlockID, event.AgentName, payload, event.Timestamp)
	return err
}

// GetEvents implements Store.
func (s *PostgresStore) GetEvents(ctx context.Context, executionID string, limit int, since time.Time) ([]v1.ExecutionEvent, error) {
	query := `
		SELECT kind, block_id, agent_name, payload, timestamp
		FROM execution_events WHERE execution_id = $1 AND timestamp > $2
		ORDER BY id ASC
	`
	args := []interface{}{executionID, since}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []v1.ExecutionEvent
	for rows.Next() {
		var e v1.ExecutionEvent
		var kind string
		var payload []byte
		if err := rows.Scan(&kind, &e.BlockID, &e.AgentName, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = v1.EventKind(kind)
		_ = json.Unmarshal(payload, &e.Payload)
		out = append(out, e)
	}
	return out, rows.Err()
}
