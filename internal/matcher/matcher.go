// Package matcher resolves a transaction description to a canonical entity
// using the deterministic lookup tiers: exact, prefix, alias and contains.
package matcher

import (
	"strings"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// Strategy is a single matching tier. TryMatch receives the trimmed,
// upper-cased description and returns nil when the tier has no opinion.
type Strategy interface {
	Name() domain.MatchType
	TryMatch(desc string, t *Tables) *domain.EntityMatch
}

// Matcher runs its strategies in order and stops at the first hit.
type Matcher struct {
	strategies []Strategy
}

// New creates a Matcher with the given strategies. With no arguments the
// default tier order is used.
func New(strategies ...Strategy) *Matcher {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Matcher{strategies: strategies}
}

// DefaultStrategies returns the tiers in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ExactStrategy{},
		PrefixStrategy{},
		AliasStrategy{},
		ContainsStrategy{},
	}
}

// Match resolves description against t. It returns nil when no tier matches.
func (m *Matcher) Match(description string, t *Tables) *domain.EntityMatch {
	desc := normalise(description)
	if desc == "" || t == nil {
		return nil
	}
	for _, s := range m.strategies {
		if match := s.TryMatch(desc, t); match != nil {
			return match
		}
	}
	return nil
}

// Match is a convenience wrapper that builds tables and runs the default tiers.
func Match(description string, nameToID map[string]string, aliasToName map[string]string) *domain.EntityMatch {
	return New().Match(description, NewTables(nameToID, aliasToName))
}

// ExactStrategy matches when the description equals a canonical name.
type ExactStrategy struct{}

func (ExactStrategy) Name() domain.MatchType { return domain.MatchExact }

func (s ExactStrategy) TryMatch(desc string, t *Tables) *domain.EntityMatch {
	name, ok := t.canonical[desc]
	if !ok {
		return nil
	}
	return t.match(name, s.Name())
}

// PrefixStrategy matches the longest canonical name the description starts with.
type PrefixStrategy struct{}

func (PrefixStrategy) Name() domain.MatchType { return domain.MatchPrefix }

func (s PrefixStrategy) TryMatch(desc string, t *Tables) *domain.EntityMatch {
	for _, key := range t.names {
		if strings.HasPrefix(desc, key) {
			return t.match(t.canonical[key], s.Name())
		}
	}
	return nil
}

// AliasStrategy matches the longest alias contained in the description and
// resolves it to the owning canonical name.
type AliasStrategy struct{}

func (AliasStrategy) Name() domain.MatchType { return domain.MatchAlias }

func (s AliasStrategy) TryMatch(desc string, t *Tables) *domain.EntityMatch {
	for _, alias := range t.aliases {
		if !strings.Contains(desc, alias) {
			continue
		}
		owner := t.aliasOwner[alias]
		if canonical, ok := t.canonical[normalise(owner)]; ok {
			owner = canonical
		}
		return t.match(owner, s.Name())
	}
	return nil
}

// ContainsStrategy matches the longest canonical name found anywhere in the
// description.
type ContainsStrategy struct{}

func (ContainsStrategy) Name() domain.MatchType { return domain.MatchContains }

func (s ContainsStrategy) TryMatch(desc string, t *Tables) *domain.EntityMatch {
	for _, key := range t.names {
		if strings.Contains(desc, key) {
			return t.match(t.canonical[key], s.Name())
		}
	}
	return nil
}

func (t *Tables) match(name string, kind domain.MatchType) *domain.EntityMatch {
	return &domain.EntityMatch{
		EntityID:   t.nameToID[name],
		EntityName: name,
		MatchType:  kind,
	}
}
