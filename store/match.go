package store

import (
	"context"
	"sort"
	"strings"

	"github.com/cadencehq/cadence/norm"
)

// Confidence tiers for identity matching. Only exact and normalized
// matches are acted on automatically; fuzzy candidates are surfaced for
// human confirmation and none means a new item.
type Confidence string

const (
	MatchExact      Confidence = "exact"
	MatchNormalized Confidence = "normalized"
	MatchFuzzy      Confidence = "fuzzy"
	MatchNone       Confidence = "none"
)

// Match is the outcome of resolving a raw identifier to an item.
type Match struct {
	Confidence Confidence `json:"confidence"`
	// Item is set for exact and normalized matches.
	Item *Item `json:"item,omitempty"`
	// Candidates carries fuzzy near-misses for human review.
	Candidates []*Item `json:"candidates,omitempty"`
}

// IdentityMatcher resolves raw identifiers from import rows to existing
// items of one type.
type IdentityMatcher interface {
	Match(ctx context.Context, itemType, identifier string) (*Match, error)
}

// Matcher is the store-backed IdentityMatcher: exact match first, then
// case/whitespace normalized, then a prefix heuristic for fuzzy
// candidates.
type Matcher struct {
	store *Store
}

// NewMatcher creates an identity matcher over the store.
func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Match resolves an identifier. Never creates items.
func (m *Matcher) Match(ctx context.Context, itemType, identifier string) (*Match, error) {
	if strings.TrimSpace(identifier) == "" {
		return &Match{Confidence: MatchNone}, nil
	}

	items, err := m.store.ListItems(ctx, ItemFilter{Type: itemType})
	if err != nil {
		return nil, err
	}

	needle := norm.NormalizeIdentifier(identifier)
	var normalized []*Item
	var fuzzy []*Item
	for _, item := range items {
		if item.Identifier == identifier {
			return &Match{Confidence: MatchExact, Item: item}, nil
		}
		key := norm.NormalizeIdentifier(item.Identifier)
		switch {
		case key == needle:
			normalized = append(normalized, item)
		case key != "" && (strings.HasPrefix(key, needle) || strings.HasPrefix(needle, key)):
			fuzzy = append(fuzzy, item)
		}
	}

	if len(normalized) > 0 {
		sort.Slice(normalized, func(i, j int) bool {
			return normalized[i].CreatedAt.Before(normalized[j].CreatedAt)
		})
		return &Match{Confidence: MatchNormalized, Item: normalized[0]}, nil
	}
	if len(fuzzy) > 0 {
		sort.Slice(fuzzy, func(i, j int) bool {
			return fuzzy[i].Identifier < fuzzy[j].Identifier
		})
		return &Match{Confidence: MatchFuzzy, Candidates: fuzzy}, nil
	}
	return &Match{Confidence: MatchNone}, nil
}
