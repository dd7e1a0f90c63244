// Package models defines the value records exchanged between the router,
// dispatcher, aggregator, and engine. All records are plain values and
// carry no behavior beyond normalization helpers.
package models

import "time"

// ChatRole identifies the author of a chat turn.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is a single turn in a conversation.
type ChatTurn struct {
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserTurn builds a user turn stamped with the current UTC time.
func NewUserTurn(text string) ChatTurn {
	return ChatTurn{Role: RoleUser, Text: text, Timestamp: time.Now().UTC()}
}

// NewAssistantTurn builds an assistant turn stamped with the current UTC time.
func NewAssistantTurn(text string) ChatTurn {
	return ChatTurn{Role: RoleAssistant, Text: text, Timestamp: time.Now().UTC()}
}
