package models

import "strings"

// AgentCapability is a capability flag advertised on an agent card.
type AgentCapability string

const (
	CapabilityPush         AgentCapability = "push"
	CapabilityStreaming    AgentCapability = "streaming"
	CapabilityStateHistory AgentCapability = "state_history"
)

// AgentSkill describes one skill advertised by an agent.
type AgentSkill struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCard is a read-only registry entry describing one agent.
// Cards are loaded at startup and never mutated during a request.
type AgentCard struct {
	// ID is the unique, stable, lowercase agent identifier.
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`

	// URLOrLocal is a local handler identifier or a remote A2A endpoint.
	// Remote cards carry an http(s) URL; local cards carry a bare name.
	URLOrLocal string `json:"url_or_local"`

	Capabilities []AgentCapability `json:"capabilities,omitempty"`
	Skills       []AgentSkill      `json:"skills,omitempty"`
	Version      string            `json:"version,omitempty"`
}

// IsRemote reports whether the card points at a network endpoint.
func (c AgentCard) IsRemote() bool {
	return strings.HasPrefix(c.URLOrLocal, "http://") || strings.HasPrefix(c.URLOrLocal, "https://")
}
