package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingDecisionNormalize(t *testing.T) {
	known := map[string]bool{"light": true, "music": true, "climate": true}
	isKnown := func(id string) bool { return known[id] }

	tests := []struct {
		name           string
		decision       RoutingDecision
		wantPrimary    string
		wantAdditional []string
	}{
		{
			name:           "lowercases and trims ids",
			decision:       RoutingDecision{PrimaryAgentID: " Light ", AdditionalAgentIDs: []string{"MUSIC"}},
			wantPrimary:    "light",
			wantAdditional: []string{"music"},
		},
		{
			name:           "removes primary from additional",
			decision:       RoutingDecision{PrimaryAgentID: "light", AdditionalAgentIDs: []string{"light", "music"}},
			wantPrimary:    "light",
			wantAdditional: []string{"music"},
		},
		{
			name:           "removes duplicates preserving order",
			decision:       RoutingDecision{PrimaryAgentID: "light", AdditionalAgentIDs: []string{"climate", "music", "climate"}},
			wantPrimary:    "light",
			wantAdditional: []string{"climate", "music"},
		},
		{
			name:           "removes unknown ids",
			decision:       RoutingDecision{PrimaryAgentID: "light", AdditionalAgentIDs: []string{"vacuum", "music"}},
			wantPrimary:    "light",
			wantAdditional: []string{"music"},
		},
		{
			name:           "empty additional stays empty",
			decision:       RoutingDecision{PrimaryAgentID: "light"},
			wantPrimary:    "light",
			wantAdditional: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.decision.Normalize(isKnown)
			assert.Equal(t, tt.wantPrimary, tt.decision.PrimaryAgentID)
			if len(tt.wantAdditional) == 0 {
				assert.Empty(t, tt.decision.AdditionalAgentIDs)
			} else {
				assert.Equal(t, tt.wantAdditional, tt.decision.AdditionalAgentIDs)
			}
			assert.NotContains(t, tt.decision.AdditionalAgentIDs, tt.decision.PrimaryAgentID)
		})
	}
}
