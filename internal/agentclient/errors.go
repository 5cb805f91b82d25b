package agentclient

import "errors"

// Sentinel errors an LLMBackend may send as a stream's terminal chunk error;
// Run translates these into the taxonomy's AppError codes (ErrAgentInternal,
// like any unrecognised error, becomes AgentInternal). An error returned by
// Stream itself is always reported as AgentUnavailable.
var (
	ErrAgentUnavailable = errors.New("agent unavailable")
	ErrAgentTimeout     = errors.New("agent call timed out")
	ErrAgentCancelled   = errors.New("agent call cancelled")
	ErrAgentInternal    = errors.New("agent backend protocol error")
)
