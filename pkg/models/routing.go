package models

import "strings"

// RoutingDecision is the router's verdict for one request: which agent
// handles the utterance, and which additional agents run after it.
type RoutingDecision struct {
	// PrimaryAgentID is a registered agent id or one of the reserved
	// clarification/fallback ids.
	PrimaryAgentID string `json:"agentId"`

	// AdditionalAgentIDs run after the primary, in order. Normalization
	// removes duplicates, unknown ids, and the primary itself.
	AdditionalAgentIDs []string `json:"additionalAgents,omitempty"`

	// Confidence is the router's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Reasoning is optional free text explaining the choice.
	Reasoning string `json:"reasoning,omitempty"`
}

// Normalize lowercases all agent ids and rebuilds AdditionalAgentIDs so that
// each entry is known (per isKnown), distinct, and different from the primary.
// Order is preserved for surviving entries.
func (d *RoutingDecision) Normalize(isKnown func(id string) bool) {
	d.PrimaryAgentID = strings.ToLower(strings.TrimSpace(d.PrimaryAgentID))

	seen := make(map[string]bool, len(d.AdditionalAgentIDs))
	normalized := d.AdditionalAgentIDs[:0]
	for _, id := range d.AdditionalAgentIDs {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || id == d.PrimaryAgentID || seen[id] {
			continue
		}
		if isKnown != nil && !isKnown(id) {
			continue
		}
		seen[id] = true
		normalized = append(normalized, id)
	}
	d.AdditionalAgentIDs = normalized
}
