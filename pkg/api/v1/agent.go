package v1

// AgentRole represents an agent's function within its block.
type AgentRole string

const (
	AgentRoleManager    AgentRole = "manager"
	AgentRoleWorker     AgentRole = "worker"
	AgentRoleSpecialist AgentRole = "specialist"
	AgentRoleModerator  AgentRole = "moderator"
)

// Agent is a named LLM configuration executing one turn at a time within a
// block. Immutable for the duration of an execution.
type Agent struct {
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Role         AgentRole `json:"role"`
	Model        string    `json:"model,omitempty"`
}

// Usage records token accounting for one agent call.
type Usage struct {
	Input            int     `json:"input"`
	Output           int     `json:"output"`
	CacheRead        int     `json:"cache_read,omitempty"`
	CacheWrite       int     `json:"cache_write,omitempty"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Add accumulates another Usage's counters into this one and recomputes the
// total.
func (u *Usage) Add(other Usage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheWrite += other.CacheWrite
	u.TotalTokens = u.Input + u.Output
	u.EstimatedCostUSD += other.EstimatedCostUSD
}

// AgentOutput is one agent's terminal result within a block, successful or
// not.
type AgentOutput struct {
	AgentName string `json:"agent_name"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	Usage     Usage  `json:"usage"`
}
