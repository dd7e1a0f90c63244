// Package events provides the observer bus for pipeline events and their
// real-time delivery to dashboards via WebSocket.
//
// Every pipeline stage publishes a typed Event. Subscribers receive events
// through per-subscriber bounded buffers: a slow or blocking subscriber
// never stalls the pipeline or its peers, at the cost of dropped events
// (oldest first) once its buffer overflows.
package events

import (
	"time"

	"github.com/lucia-home/lucia/pkg/models"
)

// Type identifies the kind of pipeline event.
type Type string

const (
	// TypeRequestStarted is published when the engine accepts a request.
	TypeRequestStarted Type = "request.started"
	// TypeRoutingCompleted is published when the router returns a decision.
	TypeRoutingCompleted Type = "routing.completed"
	// TypeAgentExecutionCompleted is published once per agent invocation,
	// successful or not.
	TypeAgentExecutionCompleted Type = "agent_execution.completed"
	// TypeResponseAggregated is published with the final user-facing text.
	TypeResponseAggregated Type = "response.aggregated"
	// TypeExecutorCompleted carries the aggregator's summary record.
	TypeExecutorCompleted Type = "executor.completed"
	// TypeExecutorFailed is additionally published when any agent failed.
	TypeExecutorFailed Type = "executor.failed"
	// TypeError is published when a pipeline stage fails internally.
	TypeError Type = "error"
)

// Event is the discriminated record published on the bus. Type selects
// which payload pointer is set; all others are nil.
type Event struct {
	Type      Type      `json:"type"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Sequence is monotonic within one request, assigned by the publisher.
	Sequence uint64 `json:"sequence"`

	RequestStarted     *RequestStartedPayload     `json:"request_started,omitempty"`
	RoutingCompleted   *RoutingCompletedPayload   `json:"routing_completed,omitempty"`
	AgentExecution     *AgentExecutionPayload     `json:"agent_execution,omitempty"`
	ResponseAggregated *ResponseAggregatedPayload `json:"response_aggregated,omitempty"`
	Executor           *ExecutorPayload           `json:"executor,omitempty"`
	Error              *ErrorPayload              `json:"error,omitempty"`
}

// RequestStartedPayload carries the incoming utterance and, when the task
// was resumed, the re-hydrated history.
type RequestStartedPayload struct {
	UserUtterance string            `json:"user_utterance"`
	History       []models.ChatTurn `json:"history,omitempty"`
}

// RoutingCompletedPayload carries the router's normalized decision.
type RoutingCompletedPayload struct {
	Decision     models.RoutingDecision `json:"decision"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
}

// AgentExecutionPayload carries one agent's response envelope.
type AgentExecutionPayload struct {
	Response models.AgentResponse `json:"response"`
}

// ResponseAggregatedPayload carries the final user-facing text.
type ResponseAggregatedPayload struct {
	FinalText string `json:"final_text"`
}

// ExecutorPayload carries the aggregator summary for telemetry consumers.
type ExecutorPayload struct {
	Result models.AggregatedResult `json:"result"`
}

// ErrorPayload identifies the failing stage and its message.
type ErrorPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}
