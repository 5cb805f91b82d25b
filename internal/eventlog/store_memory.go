package eventlog

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// MemoryStore is an in-process Store, the default driver (store.driver =
// "memory"): fine for a single-process deployment or tests, lost on
// restart.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*v1.Execution
	events     map[string][]v1.ExecutionEvent
	maxPerExec int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an in-memory Store, keeping at most maxPerExec
// events per execution (0 defaults to 5000).
func NewMemoryStore(maxPerExec int) *MemoryStore {
	if maxPerExec <= 0 {
		maxPerExec = 5000
	}
	return &MemoryStore{
		executions: make(map[string]*v1.Execution),
		events:     make(map[string][]v1.ExecutionEvent),
		maxPerExec: maxPerExec,
	}
}

// SaveExecution implements Store.
func (s *MemoryStore) SaveExecution(ctx context.Context, exec *v1.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.executions[exec.ExecutionID] = &cp
	return nil
}

// GetExecution implements Store.
func (s *MemoryStore) GetExecution(ctx context.Context, executionID string) (*v1.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[executionID]
	if !ok {
		return nil, apperrors.NotFound("execution", executionID)
	}
	cp := *exec
	return &cp, nil
}

// AppendEvent implements Store.
func (s *MemoryStore) AppendEvent(ctx context.Context, executionID string, event v1.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := append(s.events[executionID], event)
	if len(events) > s.maxPerExec {
		events = events[len(events)-s.maxPerExec:]
	}
	s.events[executionID] = events
	return nil
}

// GetEvents implements Store.
func (s *MemoryStore) GetEvents(ctx context.Context, executionID string, limit int, since time.Time) ([]v1.ExecutionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[executionID]
	var filtered []v1.ExecutionEvent
	for _, e := range events {
		if e.Timestamp.After(since) {
			filtered = append(filtered, e)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	out := make([]v1.ExecutionEvent, len(filtered))
	copy(out, filtered)
	return out, nil
}
