package models

// AgentResponse is the outcome of one agent execution. Every wrapper
// invocation produces exactly one, regardless of how the agent exited.
type AgentResponse struct {
	AgentID string `json:"agent_id"`

	// Content is the agent's reply text. May be empty even on success.
	Content string `json:"content"`

	Success bool `json:"success"`

	// ErrorMessage is set iff Success is false.
	ErrorMessage string `json:"error_message,omitempty"`

	// ExecutionMS is the wall-clock duration of the invocation in
	// milliseconds, clamped to be non-negative.
	ExecutionMS int64 `json:"execution_ms"`
}

// FailedAgent pairs an agent id with the error it produced.
type FailedAgent struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// AggregatedResult is the aggregator's summary of a dispatch round.
// Message is never empty: total failure yields the configured fallback.
type AggregatedResult struct {
	Message          string        `json:"message"`
	SuccessfulAgents []string      `json:"successful_agents"`
	FailedAgents     []FailedAgent `json:"failed_agents"`
	TotalExecutionMS int64         `json:"total_execution_ms"`
}

// TotalFailure reports whether every dispatched agent failed.
func (r *AggregatedResult) TotalFailure() bool {
	return len(r.SuccessfulAgents) == 0 && len(r.FailedAgents) > 0
}
