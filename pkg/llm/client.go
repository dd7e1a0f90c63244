// Package llm defines the chat-client capability the router and local
// agents call into. Concrete bindings live in subpackages (see llm/openai);
// the wire protocol is the binding's concern, not the core's.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role values for chat messages sent to a client.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation sent to a chat client.
type Message struct {
	Role    string
	Content string
}

// JSONSchema constrains the response to a strict JSON object.
type JSONSchema struct {
	// Name labels the schema for providers that require one.
	Name string
	// Schema is the JSON Schema document as a generic map.
	Schema map[string]any
}

// Request is a single chat completion request.
type Request struct {
	Messages []Message

	// Temperature and MaxTokens are sampling hints; zero values mean
	// "provider default".
	Temperature     float64
	MaxOutputTokens int

	// ResponseFormat, when set, instructs the provider to emit a strict
	// JSON object matching the schema.
	ResponseFormat *JSONSchema
}

// Response is the assistant's reply.
type Response struct {
	Content string
}

// Client is a pluggable chat backend: it takes messages and returns a
// message, optionally honoring a structured-output constraint.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// ErrClientNotFound is returned when a keyed client binding is missing.
var ErrClientNotFound = errors.New("chat client not found")

// DefaultClientKey is the binding used when an agent or the router does not
// name one.
const DefaultClientKey = "default"

// Clients is a keyed set of chat-client bindings. Agents and the router
// select a binding by key at construction; this stands in for framework
// keyed dependency injection.
type Clients map[string]Client

// Get returns the binding for key, falling back to the default binding
// when key is empty.
func (c Clients) Get(key string) (Client, error) {
	if key == "" {
		key = DefaultClientKey
	}
	client, ok := c[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrClientNotFound, key)
	}
	return client, nil
}
