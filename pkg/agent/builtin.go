package agent

import (
	"context"
	"fmt"

	"github.com/lucia-home/lucia/pkg/llm"
	"github.com/lucia-home/lucia/pkg/models"
)

// DefaultClarificationMessage is the reply of the clarification pseudo-agent
// when no candidate hint is available.
const DefaultClarificationMessage = "I'm not quite sure what you'd like me to do. Could you rephrase your request?"

// Clarification returns the pseudo-agent used when routing confidence is too
// low. hint, when non-empty, is appended so the user sees which agents were
// considered.
func Clarification(hint string) LocalAgent {
	return Func(func(_ context.Context, _ models.ChatTurn, thread models.Thread) (string, models.Thread, error) {
		if hint == "" {
			return DefaultClarificationMessage, thread, nil
		}
		return fmt.Sprintf("%s (%s)", DefaultClarificationMessage, hint), thread, nil
	})
}

const generalAssistantSystemPrompt = `You are a helpful home assistant. Answer ` +
	`the user's request directly and concisely. If the request needs a device ` +
	`or service you cannot control, say so.`

// GeneralAssistant is the chat-client-backed catch-all agent behind the
// reserved fallback id. Its thread handle is the accumulated chat history.
type GeneralAssistant struct {
	client       llm.Client
	systemPrompt string
}

// NewGeneralAssistant builds the fallback agent on the given chat binding.
// An empty systemPrompt uses the built-in one.
func NewGeneralAssistant(client llm.Client, systemPrompt string) *GeneralAssistant {
	if systemPrompt == "" {
		systemPrompt = generalAssistantSystemPrompt
	}
	return &GeneralAssistant{client: client, systemPrompt: systemPrompt}
}

var _ LocalAgent = (*GeneralAssistant)(nil)

// Handle sends the conversation so far plus the new turn to the chat client.
func (g *GeneralAssistant) Handle(ctx context.Context, turn models.ChatTurn, thread models.Thread) (string, models.Thread, error) {
	messages, _ := thread.([]llm.Message)
	if len(messages) == 0 {
		messages = []llm.Message{{Role: llm.RoleSystem, Content: g.systemPrompt}}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Text})

	resp, err := g.client.Chat(ctx, llm.Request{Messages: messages})
	if err != nil {
		return "", thread, fmt.Errorf("general assistant: %w", err)
	}

	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	return resp.Content, messages, nil
}
