package deployment

import (
	"errors"
	"sync"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// ErrDeploymentNotFound is returned for an unregistered deployment path/id.
var ErrDeploymentNotFound = errors.New("deployment not found")

// Deployment binds a stable path to the Design it deploys, optionally on a
// cron schedule.
type Deployment struct {
	ID       string
	Path     string
	Design   *v1.Design
	RootTask string
	Cron     string // empty = manually triggered only
}

// deploymentLog records one trigger of a Deployment; LogID doubles as the
// execution id, since every trigger produces exactly one execution.
type deploymentLog struct {
	logID       string
	executionID string
}

// Tracker maps deployment paths/ids to their Design and keeps each
// deployment's trigger history (stored oldest first, listed newest first by
// RecentLogIDs), mirroring
// the teacher's executions map but keyed by deployment rather than task.
type Tracker struct {
	mu          sync.RWMutex
	byPath      map[string]*Deployment
	byID        map[string]*Deployment
	logs        map[string][]deploymentLog // deployment id -> logs, newest last
	activeExec  map[string]string          // deployment id -> in-flight execution id, absent if none
}

// NewTracker builds an empty deployment Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byPath:     make(map[string]*Deployment),
		byID:       make(map[string]*Deployment),
		logs:       make(map[string][]deploymentLog),
		activeExec: make(map[string]string),
	}
}

// Register adds or replaces a Deployment.
func (t *Tracker) Register(d *Deployment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPath[d.Path] = d
	t.byID[d.ID] = d
}

// ByPath looks up a Deployment by its URL path.
func (t *Tracker) ByPath(path string) (*Deployment, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byPath[path]
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	return d, nil
}

// ByID looks up a Deployment by id.
func (t *Tracker) ByID(id string) (*Deployment, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byID[id]
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	return d, nil
}

// All returns every registered Deployment, for the scheduler to iterate.
func (t *Tracker) All() []*Deployment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Deployment, 0, len(t.byID))
	for _, d := range t.byID {
		out = append(out, d)
	}
	return out
}

// RecordTrigger appends a log entry for a deployment's new execution and
// marks it as the deployment's in-flight execution.
func (t *Tracker) RecordTrigger(deploymentID, executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs[deploymentID] = append(t.logs[deploymentID], deploymentLog{logID: executionID, executionID: executionID})
	t.activeExec[deploymentID] = executionID
}

// MarkIdle clears the in-flight marker for a deployment once its execution
// reaches a terminal state, allowing schedule_skip_if_active checks to pass
// again.
func (t *Tracker) MarkIdle(deploymentID, executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeExec[deploymentID] == executionID {
		delete(t.activeExec, deploymentID)
	}
}

// deploymentForExecution reverse-looks-up which deployment an in-flight
// execution id belongs to, or "" if none (already cleared, or never
// tracked as active).
func (t *Tracker) deploymentForExecution(executionID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for depID, execID := range t.activeExec {
		if execID == executionID {
			return depID
		}
	}
	return ""
}

// IsActive reports whether a deployment currently has an in-flight
// execution, for the skip-if-active scheduler check.
func (t *Tracker) IsActive(deploymentID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.activeExec[deploymentID]
	return ok
}

// RecentLogIDs returns up to limit of a deployment's most recent log ids,
// newest first (limit <= 0 returns all).
func (t *Tracker) RecentLogIDs(deploymentID string, limit int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	logs := t.logs[deploymentID]
	ids := make([]string, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		ids = append(ids, logs[i].logID)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// LogExecutionID resolves a log id to its execution id. Log ids and
// execution ids are the same value today; the lookup exists so callers
// never need to know that.
func (t *Tracker) LogExecutionID(deploymentID, logID string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, l := range t.logs[deploymentID] {
		if l.logID == logID {
			return l.executionID, nil
		}
	}
	return "", errors.New("log not found")
}
