package events

import (
	"sync/atomic"
	"time"
)

// messageLimit is the maximum message length forwarded to dashboards.
// Longer messages are cut and suffixed with an ellipsis.
const messageLimit = 100

// LiveEvent is the flattened record consumed by dashboard clients.
type LiveEvent struct {
	Type         string  `json:"type"`
	Timestamp    string  `json:"timestamp"` // RFC3339Nano
	RequestID    string  `json:"request_id"`
	AgentName    string  `json:"agent_name,omitempty"`
	State        string  `json:"state,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// LiveStream is a bus subscriber that translates pipeline events into
// dashboard records and buffers them in a bounded queue. Unread overflow is
// dropped oldest-first.
type LiveStream struct {
	ch      chan LiveEvent
	dropped atomic.Uint64
}

// NewLiveStream creates a stream with the given queue capacity. A
// non-positive capacity falls back to DefaultBufferSize.
func NewLiveStream(capacity int) *LiveStream {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &LiveStream{ch: make(chan LiveEvent, capacity)}
}

// Events returns the channel UI consumers read from.
func (s *LiveStream) Events() <-chan LiveEvent {
	return s.ch
}

// Dropped returns how many records were shed due to unread overflow.
func (s *LiveStream) Dropped() uint64 {
	return s.dropped.Load()
}

// Handle implements the bus Handler. It is registered via Bus.Subscribe.
func (s *LiveStream) Handle(event Event) {
	record := translate(event)
	select {
	case s.ch <- record:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- record:
	default:
		s.dropped.Add(1)
	}
}

// translate flattens a pipeline event into the dashboard record shape.
func translate(event Event) LiveEvent {
	record := LiveEvent{
		Type:      string(event.Type),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		RequestID: event.RequestID,
	}
	switch {
	case event.RequestStarted != nil:
		record.Message = truncate(event.RequestStarted.UserUtterance)
	case event.RoutingCompleted != nil:
		record.AgentName = event.RoutingCompleted.Decision.PrimaryAgentID
		record.Confidence = event.RoutingCompleted.Decision.Confidence
	case event.AgentExecution != nil:
		resp := event.AgentExecution.Response
		record.AgentName = resp.AgentID
		record.DurationMS = resp.ExecutionMS
		if resp.Success {
			record.State = "completed"
			record.Message = truncate(resp.Content)
		} else {
			record.State = "failed"
			record.ErrorMessage = truncate(resp.ErrorMessage)
		}
	case event.ResponseAggregated != nil:
		record.Message = truncate(event.ResponseAggregated.FinalText)
	case event.Executor != nil:
		record.DurationMS = event.Executor.Result.TotalExecutionMS
		record.Message = truncate(event.Executor.Result.Message)
	case event.Error != nil:
		record.State = event.Error.Stage
		record.ErrorMessage = truncate(event.Error.Message)
	}
	return record
}

// truncate cuts s at messageLimit runes and appends an ellipsis.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= messageLimit {
		return s
	}
	return string(runes[:messageLimit]) + "…"
}
