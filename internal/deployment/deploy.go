package deployment

import (
	"context"
	"fmt"
)

// TriggerResult is the immediate response to a deployment trigger.
type TriggerResult struct {
	ExecutionID string
	LogID       string
	StatusURL   string
	AllLogsURL  string
}

// Service ties a Tracker (path/id -> Design, trigger history) to an
// Executor (the async run itself), matching the split between "what to
// run" and "how to run it asynchronously" spec.md §4.6 describes.
type Service struct {
	tracker  *Tracker
	executor *Executor
}

// NewService builds a deployment Service. The executor's terminal-run
// callback is wired here, so every deployment trigger's active marker is
// cleared as soon as its execution reaches a terminal state.
func NewService(tracker *Tracker, executor *Executor) *Service {
	s := &Service{tracker: tracker, executor: executor}
	executor.OnTerminal(func(executionID string) {
		if d := tracker.deploymentForExecution(executionID); d != "" {
			tracker.MarkIdle(d, executionID)
		}
	})
	return s
}

// Trigger starts a deployment's design execution and records it in the
// deployment's log history before the execution can possibly reach a
// terminal state, via Executor.Trigger's synchronous onStarted callback.
func (s *Service) Trigger(ctx context.Context, deploymentID string) (TriggerResult, error) {
	d, err := s.tracker.ByID(deploymentID)
	if err != nil {
		return TriggerResult{}, err
	}

	executionID := s.executor.Trigger(ctx, d.Design, d.RootTask, func(executionID string) {
		s.tracker.RecordTrigger(d.ID, executionID)
	})

	return TriggerResult{
		ExecutionID: executionID,
		LogID:       executionID,
		StatusURL:   fmt.Sprintf("/executions/%s", executionID),
		AllLogsURL:  fmt.Sprintf("/deployments/%s/logs", d.ID),
	}, nil
}
