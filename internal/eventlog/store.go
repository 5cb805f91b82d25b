// Package eventlog aggregates and persists ExecutionEvents and stores final
// Execution records, then fans events back out to live SSE subscribers.
package eventlog

import (
	"context"
	"time"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Store persists executions and their event streams. internal/broker's
// credential/workspace split has one concern each; Store has two because
// an execution record and its events share a lifetime and a retention
// policy, and every backing driver (memory, sqlite, postgres) needs both.
type Store interface {
	// SaveExecution upserts an execution's current snapshot.
	SaveExecution(ctx context.Context, exec *v1.Execution) error

	// GetExecution retrieves an execution by id.
	GetExecution(ctx context.Context, executionID string) (*v1.Execution, error)

	// AppendEvent appends one ExecutionEvent to an execution's log.
	AppendEvent(ctx context.Context, executionID string, event v1.ExecutionEvent) error

	// GetEvents retrieves events for an execution, optionally bounded by
	// limit (0 = unbounded) and only those after since.
	GetEvents(ctx context.Context, executionID string, limit int, since time.Time) ([]v1.ExecutionEvent, error)
}
