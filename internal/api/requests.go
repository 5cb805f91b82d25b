package api

import (
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// AgentSpec is the wire shape for one agent within a pattern request body.
type AgentSpec struct {
	Name         string `json:"name" binding:"required"`
	SystemPrompt string `json:"system_prompt"`
	Role         string `json:"role"`
	Model        string `json:"model"`
}

func (a AgentSpec) toAgent() v1.Agent {
	role := v1.AgentRole(a.Role)
	if role == "" {
		role = v1.AgentRoleWorker
	}
	return v1.Agent{Name: a.Name, SystemPrompt: a.SystemPrompt, Role: role, Model: a.Model}
}

// PatternRequest is the shared request body shape for the five direct
// pattern endpoints. Not every field applies to every pattern; unused
// fields are ignored (e.g. Rounds for sequential).
type PatternRequest struct {
	Task    string      `json:"task" binding:"required"`
	Agents  []AgentSpec `json:"agents" binding:"required,min=1"`
	GitRepo string      `json:"git_repo"`

	Rounds     int    `json:"rounds"`     // debate, reflection
	Aggregator string `json:"aggregator"` // parallel: agent name
	Manager    string `json:"manager"`    // hierarchical: agent name
	Router     string `json:"router"`     // routing: agent name
	Moderator  string `json:"moderator"`  // debate: agent name

	ParallelWorkers bool `json:"parallel_workers"` // hierarchical
}

// toBlock builds the single-block v1.Block a direct pattern request
// executes, identified by a fixed id since direct pattern calls have no
// surrounding design graph.
func (r PatternRequest) toBlock(pattern v1.Pattern) v1.Block {
	agents := make([]v1.Agent, 0, len(r.Agents))
	for _, a := range r.Agents {
		agents = append(agents, a.toAgent())
	}
	return v1.Block{
		ID:              "direct",
		Pattern:         pattern,
		Agents:          agents,
		Task:            r.Task,
		GitRepo:         r.GitRepo,
		Rounds:          r.Rounds,
		Aggregator:      r.Aggregator,
		Manager:         r.Manager,
		Router:          r.Router,
		Moderator:       r.Moderator,
		ParallelWorkers: r.ParallelWorkers,
	}
}

// ExecuteDesignRequest is the body for POST /designs/{id}/execute.
type ExecuteDesignRequest struct {
	Task string `json:"task"`
}

// PatternResponse is the non-streaming response shape for a direct pattern
// call.
type PatternResponse struct {
	Pattern     v1.Pattern     `json:"pattern"`
	ExecutionID string         `json:"execution_id"`
	Status      string         `json:"status"`
	Result      v1.BlockResult `json:"result"`
	DurationMS  int64          `json:"duration_ms"`
	CreatedAt   string         `json:"created_at"`
}

// TriggerResponse is the response shape for a deployment trigger.
type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
	LogID       string `json:"log_id"`
	StatusURL   string `json:"status_url"`
	AllLogsURL  string `json:"all_logs_url"`
}

// ExecuteDesignResponse is the response shape for POST /designs/{id}/execute.
type ExecuteDesignResponse struct {
	ExecutionID string `json:"execution_id"`
	StatusURL   string `json:"status_url"`
}
