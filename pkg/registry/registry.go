// Package registry holds the read-side directory of available agents.
// Cards are loaded once at startup; the registry is immutable afterwards,
// so lookups need no locking during requests.
package registry

import (
	"fmt"
	"strings"

	"github.com/lucia-home/lucia/pkg/models"
)

// Registry is a read-only directory of agent cards, preserving registration
// order for deterministic catalog rendering.
type Registry struct {
	order []string
	cards map[string]models.AgentCard
}

// New builds a registry from the given cards. Ids are lowercased; empty or
// duplicate ids are rejected.
func New(cards []models.AgentCard) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(cards)),
		cards: make(map[string]models.AgentCard, len(cards)),
	}
	for _, card := range cards {
		id := strings.ToLower(strings.TrimSpace(card.ID))
		if id == "" {
			return nil, fmt.Errorf("agent card %q has empty id", card.DisplayName)
		}
		if _, exists := r.cards[id]; exists {
			return nil, fmt.Errorf("duplicate agent id %q", id)
		}
		card.ID = id
		r.order = append(r.order, id)
		r.cards[id] = card
	}
	return r, nil
}

// Get looks up one card by id (case-insensitive).
func (r *Registry) Get(id string) (models.AgentCard, bool) {
	card, ok := r.cards[strings.ToLower(id)]
	return card, ok
}

// Has reports whether id names a registered agent.
func (r *Registry) Has(id string) bool {
	_, ok := r.cards[strings.ToLower(id)]
	return ok
}

// List returns the cards in registration order.
func (r *Registry) List() []models.AgentCard {
	cards := make([]models.AgentCard, 0, len(r.order))
	for _, id := range r.order {
		cards = append(cards, r.cards[id])
	}
	return cards
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	return len(r.order)
}
