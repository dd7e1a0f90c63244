// Package router selects which agents handle an utterance. It renders the
// registry as a catalog prompt, asks a chat client for a structured routing
// decision, and normalizes the answer against the registry.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lucia-home/lucia/pkg/llm"
	"github.com/lucia-home/lucia/pkg/models"
	"github.com/lucia-home/lucia/pkg/registry"
)

// Reserved agent ids. The clarification id is substituted when confidence is
// below threshold; the fallback id when routing cannot produce a usable
// decision at all.
const (
	DefaultClarificationAgentID = "clarification"
	DefaultFallbackAgentID      = "general-assistant"
)

// Tunable defaults. Zero-valued Options fields fall back to these.
const (
	DefaultConfidenceThreshold = 0.7
	DefaultMaxAttempts         = 3
	DefaultTemperature         = 0.3
	DefaultMaxOutputTokens     = 500
	DefaultSkillExampleLimit   = 2
)

const defaultSystemPrompt = `You are the routing component of a home assistant. ` +
	`Given a user utterance and a catalog of available agents, choose the single ` +
	`agent best suited to handle it. If the request spans several domains, list ` +
	`the extra agents under additionalAgents in execution order. Respond with ` +
	`JSON only.`

const defaultCatalogHeader = "Available agents:"

const defaultUserPromptTemplate = `{catalog}

User request: {utterance}

Pick the best agent and report your confidence between 0.0 and 1.0.`

const (
	defaultClarificationReasonTemplate = "confidence below threshold; closest candidates: {candidates}"
	defaultFallbackReasonTemplate      = "routing failed after {attempts} attempts"
)

// Options tunes routing behavior. The zero value is usable; unset fields
// take the package defaults above.
type Options struct {
	// ChatClientKey selects the chat-client binding. Empty means the
	// default binding.
	ChatClientKey string `yaml:"chat_client_key"`

	// ConfidenceThreshold rewrites decisions below it to the
	// clarification agent.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxAttempts is the total number of chat calls before giving up and
	// returning the fallback decision. Values below 1 are treated as the
	// default.
	MaxAttempts int `yaml:"max_attempts"`

	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`

	// IncludeCapabilities and IncludeSkillExamples enrich catalog entries.
	// Both default to true; use a pointer to switch them off explicitly.
	IncludeCapabilities  *bool `yaml:"include_capabilities"`
	IncludeSkillExamples *bool `yaml:"include_skill_examples"`

	// SkillExampleLimit caps example lines per skill in the catalog.
	SkillExampleLimit int `yaml:"skill_example_limit"`

	// Prompt fragments. {catalog} and {utterance} are substituted in the
	// user prompt template, {candidates} in the clarification reason,
	// {attempts} in the fallback reason.
	SystemPrompt                string `yaml:"system_prompt"`
	UserPromptTemplate          string `yaml:"user_prompt_template"`
	CatalogHeader               string `yaml:"catalog_header"`
	ClarificationReasonTemplate string `yaml:"clarification_reason_template"`
	FallbackReasonTemplate      string `yaml:"fallback_reason_template"`

	ClarificationAgentID string `yaml:"clarification_agent_id"`
	FallbackAgentID      string `yaml:"fallback_agent_id"`
}

func (o Options) withDefaults() Options {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if o.IncludeCapabilities == nil {
		t := true
		o.IncludeCapabilities = &t
	}
	if o.IncludeSkillExamples == nil {
		t := true
		o.IncludeSkillExamples = &t
	}
	if o.SkillExampleLimit <= 0 {
		o.SkillExampleLimit = DefaultSkillExampleLimit
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaultSystemPrompt
	}
	if o.UserPromptTemplate == "" {
		o.UserPromptTemplate = defaultUserPromptTemplate
	}
	if o.CatalogHeader == "" {
		o.CatalogHeader = defaultCatalogHeader
	}
	if o.ClarificationReasonTemplate == "" {
		o.ClarificationReasonTemplate = defaultClarificationReasonTemplate
	}
	if o.FallbackReasonTemplate == "" {
		o.FallbackReasonTemplate = defaultFallbackReasonTemplate
	}
	if o.ClarificationAgentID == "" {
		o.ClarificationAgentID = DefaultClarificationAgentID
	}
	if o.FallbackAgentID == "" {
		o.FallbackAgentID = DefaultFallbackAgentID
	}
	return o
}

// Recap is the compressed conversation summary prepended to the routing
// prompt on follow-up requests. It carries task metadata only, never raw
// history content.
type Recap struct {
	Location          string
	PreviousAgents    []string
	ConversationTopic string
}

func (r Recap) isEmpty() bool {
	return r.Location == "" && len(r.PreviousAgents) == 0 && r.ConversationTopic == ""
}

// Router produces a RoutingDecision per request.
type Router struct {
	client   llm.Client
	registry *registry.Registry
	opts     Options
}

// New builds a Router. The chat binding is resolved once at construction.
func New(clients llm.Clients, reg *registry.Registry, opts Options) (*Router, error) {
	opts = opts.withDefaults()
	client, err := clients.Get(opts.ChatClientKey)
	if err != nil {
		return nil, fmt.Errorf("router chat client: %w", err)
	}
	return &Router{client: client, registry: reg, opts: opts}, nil
}

// SystemPrompt returns the effective system prompt, for telemetry.
func (r *Router) SystemPrompt() string {
	return r.opts.SystemPrompt
}

// Route chooses the agents for one utterance. It never returns an empty
// decision: registry misses, parse failures, and low confidence all resolve
// to the reserved ids. Only cancellation surfaces as an error.
func (r *Router) Route(ctx context.Context, utterance string, recap Recap) (models.RoutingDecision, error) {
	cards := r.registry.List()
	if len(cards) == 0 {
		return models.RoutingDecision{
			PrimaryAgentID: r.opts.FallbackAgentID,
			Confidence:     0,
			Reasoning:      "no registered agents",
		}, nil
	}

	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: r.opts.SystemPrompt},
			{Role: llm.RoleUser, Content: r.userPrompt(utterance, recap)},
		},
		Temperature:     r.opts.Temperature,
		MaxOutputTokens: r.opts.MaxOutputTokens,
		ResponseFormat:  decisionSchema(),
	}

	decision, ok := r.askWithRetries(ctx, req)
	if err := ctx.Err(); err != nil {
		return models.RoutingDecision{}, err
	}
	if !ok {
		return models.RoutingDecision{
			PrimaryAgentID: r.opts.FallbackAgentID,
			Confidence:     0,
			Reasoning: strings.ReplaceAll(r.opts.FallbackReasonTemplate,
				"{attempts}", fmt.Sprintf("%d", r.opts.MaxAttempts)),
		}, nil
	}

	decision.Normalize(r.registry.Has)

	// Candidate ranking as the model reported it, captured before any
	// rewrite below discards the original primary.
	candidates := rankedCandidates(decision)

	if !r.registry.Has(decision.PrimaryAgentID) && !r.isReserved(decision.PrimaryAgentID) {
		slog.Debug("Routing chose unknown agent, rewriting to fallback",
			"agent_id", decision.PrimaryAgentID)
		decision.PrimaryAgentID = r.opts.FallbackAgentID
	}

	if decision.Confidence < r.opts.ConfidenceThreshold {
		decision.PrimaryAgentID = r.opts.ClarificationAgentID
		decision.AdditionalAgentIDs = nil
		decision.Reasoning = strings.ReplaceAll(r.opts.ClarificationReasonTemplate,
			"{candidates}", strings.Join(candidates, ", "))
	}

	return decision, nil
}

// askWithRetries performs up to MaxAttempts chat calls, returning the first
// decision that parses and validates.
func (r *Router) askWithRetries(ctx context.Context, req llm.Request) (models.RoutingDecision, bool) {
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return models.RoutingDecision{}, false
		}
		resp, err := r.client.Chat(ctx, req)
		if err != nil {
			slog.Warn("Routing chat call failed",
				"attempt", attempt, "max_attempts", r.opts.MaxAttempts, "error", err)
			continue
		}
		decision, err := parseDecision(resp.Content)
		if err != nil {
			slog.Warn("Routing response rejected",
				"attempt", attempt, "max_attempts", r.opts.MaxAttempts, "error", err)
			continue
		}
		return decision, true
	}
	return models.RoutingDecision{}, false
}

func (r *Router) isReserved(id string) bool {
	return id == r.opts.ClarificationAgentID || id == r.opts.FallbackAgentID
}

// userPrompt renders the user message: optional recap, catalog, utterance.
func (r *Router) userPrompt(utterance string, recap Recap) string {
	body := strings.NewReplacer(
		"{catalog}", r.renderCatalog(),
		"{utterance}", utterance,
	).Replace(r.opts.UserPromptTemplate)

	if recap.isEmpty() {
		return body
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	if recap.Location != "" {
		fmt.Fprintf(&b, "- location: %s\n", recap.Location)
	}
	if len(recap.PreviousAgents) > 0 {
		fmt.Fprintf(&b, "- previous agents: %s\n", strings.Join(recap.PreviousAgents, ", "))
	}
	if recap.ConversationTopic != "" {
		fmt.Fprintf(&b, "- topic: %s\n", recap.ConversationTopic)
	}
	b.WriteString("\n")
	b.WriteString(body)
	return b.String()
}

// renderCatalog lists every registered agent in registration order, so the
// prompt is deterministic for a given registry.
func (r *Router) renderCatalog() string {
	var b strings.Builder
	b.WriteString(r.opts.CatalogHeader)
	for _, card := range r.registry.List() {
		fmt.Fprintf(&b, "\n- %s: %s", card.ID, card.Description)
		if *r.opts.IncludeCapabilities && len(card.Capabilities) > 0 {
			tags := make([]string, len(card.Capabilities))
			for i, c := range card.Capabilities {
				tags[i] = string(c)
			}
			fmt.Fprintf(&b, " capabilities: %s", strings.Join(tags, ", "))
		}
		if *r.opts.IncludeSkillExamples {
			for _, skill := range card.Skills {
				examples := skill.Examples
				if len(examples) > r.opts.SkillExampleLimit {
					examples = examples[:r.opts.SkillExampleLimit]
				}
				for _, example := range examples {
					fmt.Fprintf(&b, "\n  example: %s", example)
				}
			}
		}
	}
	return b.String()
}

// parseDecision decodes and validates the model's JSON answer.
func parseDecision(content string) (models.RoutingDecision, error) {
	var decision models.RoutingDecision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return models.RoutingDecision{}, fmt.Errorf("parse routing decision: %w", err)
	}
	if strings.TrimSpace(decision.PrimaryAgentID) == "" {
		return models.RoutingDecision{}, fmt.Errorf("routing decision has empty agentId")
	}
	if decision.Confidence < 0 || decision.Confidence > 1 {
		return models.RoutingDecision{}, fmt.Errorf("routing confidence %v out of range", decision.Confidence)
	}
	return decision, nil
}

// rankedCandidates returns the model's top picks, primary first, capped at
// two for the clarification reasoning.
func rankedCandidates(d models.RoutingDecision) []string {
	candidates := append([]string{d.PrimaryAgentID}, d.AdditionalAgentIDs...)
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	return candidates
}

// decisionSchema is the strict JSON shape requested from the chat client.
func decisionSchema() *llm.JSONSchema {
	return &llm.JSONSchema{
		Name: "routing_decision",
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"agentId", "confidence", "reasoning", "additionalAgents"},
			"properties": map[string]any{
				"agentId": map[string]any{
					"type":        "string",
					"description": "id of the agent best suited to handle the request",
				},
				"confidence": map[string]any{
					"type":        "number",
					"description": "certainty of the choice between 0.0 and 1.0",
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "short explanation of the choice",
				},
				"additionalAgents": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "other agents to run after the primary, in order",
				},
			},
		},
	}
}
