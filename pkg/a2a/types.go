// Package a2a defines the A2A protocol data types used for durable task
// records and remote task delivery. Field names use camelCase JSON tags to
// conform to the A2A protocol specification.
package a2a

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lucia-home/lucia/pkg/models"
)

// Task is the A2A durable task record: the authoritative status, history,
// and artifacts of one conversation.
type Task struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`
	// ContextID ties all turns of one dialogue together across restarts.
	ContextID string `json:"contextId"`
	// Status is the most recent task status snapshot.
	Status *TaskStatus `json:"status,omitempty"`
	// History contains the ordered message history for the task.
	History []*Message `json:"history,omitempty"`
	// Artifacts are opaque output blobs accumulated so far.
	Artifacts []*Artifact `json:"artifacts,omitempty"`
	// Metadata holds implementation-defined task metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Extra preserves unknown top-level fields across round-trips.
	Extra map[string]json.RawMessage `json:"-"`
}

// TaskStatus represents the status of an A2A task at a point in time.
type TaskStatus struct {
	// State is the canonical kebab-case task state, e.g. "working".
	State State `json:"state"`
	// Message is an optional human-readable status message.
	Message *Message `json:"message,omitempty"`
	// Timestamp is an RFC3339 UTC timestamp for the status update.
	Timestamp string `json:"timestamp,omitempty"`
}

// Message represents a single message in an A2A task conversation.
type Message struct {
	// Role is the message role: "user" or "agent".
	Role string `json:"role"`
	// MessageID uniquely identifies the message within the task.
	MessageID string `json:"messageId,omitempty"`
	// Parts are the ordered content parts that make up the message.
	Parts []*Part `json:"parts"`
}

// Part represents one content part of a message (text, data, or file).
type Part struct {
	// Text is the textual content when present.
	Text *string `json:"text,omitempty"`
	// Data is a structured payload.
	Data json.RawMessage `json:"data,omitempty"`
	// MIMEType and URI describe file parts.
	MIMEType *string `json:"mimeType,omitempty"`
	URI      *string `json:"uri,omitempty"`
}

// Artifact represents an output artifact attached to a task. The core never
// inspects artifact contents.
type Artifact struct {
	ID    string  `json:"id"`
	Name  *string `json:"name,omitempty"`
	Parts []*Part `json:"parts,omitempty"`
	// Metadata carries implementation-defined artifact metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message roles on the A2A wire. The protocol uses "agent", not "assistant".
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// NewTask creates a task in the submitted state with a fresh context id when
// none is supplied.
func NewTask(id, contextID string) *Task {
	if id == "" {
		id = uuid.New().String()
	}
	if contextID == "" {
		contextID = uuid.New().String()
	}
	return &Task{
		ID:        id,
		ContextID: contextID,
		Status: &TaskStatus{
			State:     StateSubmitted,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Metadata: make(map[string]any),
	}
}

// TextMessage builds a single-part text message with a fresh message id.
func TextMessage(role, text string) *Message {
	return &Message{
		Role:      role,
		MessageID: uuid.New().String(),
		Parts:     []*Part{{Text: &text}},
	}
}

// Text concatenates the text parts of the message.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var out string
	for _, p := range m.Parts {
		if p != nil && p.Text != nil {
			out += *p.Text
		}
	}
	return out
}

// AppendHistory appends a message to the task history.
func (t *Task) AppendHistory(msg *Message) {
	t.History = append(t.History, msg)
}

// LastAgentMessage returns the most recent agent-role message in the task
// history, or nil when there is none.
func (t *Task) LastAgentMessage() *Message {
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i] != nil && t.History[i].Role == RoleAgent {
			return t.History[i]
		}
	}
	return nil
}

// HistoryTurns converts the task history into chat turns, mapping the wire
// "agent" role to the internal assistant role.
func (t *Task) HistoryTurns() []models.ChatTurn {
	turns := make([]models.ChatTurn, 0, len(t.History))
	for _, msg := range t.History {
		if msg == nil {
			continue
		}
		role := models.RoleUser
		if msg.Role == RoleAgent {
			role = models.RoleAssistant
		}
		turns = append(turns, models.ChatTurn{Role: role, Text: msg.Text()})
	}
	return turns
}
