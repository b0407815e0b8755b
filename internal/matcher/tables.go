package matcher

import (
	"maps"
	"slices"
	"sort"
	"strings"
)

// Tables is a read-only snapshot of the entity lookup tables, precomputed for
// case-insensitive matching. It is built once per import run and shared by
// every strategy.
type Tables struct {
	nameToID map[string]string
	// upper-cased canonical name -> canonical name
	canonical map[string]string
	// upper-cased canonical names, longest first
	names []string
	// upper-cased aliases, longest first
	aliases []string
	// upper-cased alias -> canonical name
	aliasOwner map[string]string
}

// NewTables builds lookup tables from a name->id map and an alias->name map.
// Alias keys are expected to come from BuildAliasTable but are normalised
// again here. Names or aliases that differ only in case keep the first in
// sorted order.
func NewTables(nameToID map[string]string, aliasToName map[string]string) *Tables {
	t := &Tables{
		nameToID:   make(map[string]string, len(nameToID)),
		canonical:  make(map[string]string, len(nameToID)),
		aliasOwner: make(map[string]string, len(aliasToName)),
	}

	for _, name := range slices.Sorted(maps.Keys(nameToID)) {
		key := normalise(name)
		if key == "" {
			continue
		}
		if _, dup := t.canonical[key]; dup {
			continue
		}
		t.nameToID[name] = nameToID[name]
		t.canonical[key] = name
		t.names = append(t.names, key)
	}

	for _, alias := range slices.Sorted(maps.Keys(aliasToName)) {
		key, owner := normalise(alias), aliasToName[alias]
		if key == "" || owner == "" {
			continue
		}
		if _, dup := t.aliasOwner[key]; dup {
			continue
		}
		t.aliasOwner[key] = owner
		t.aliases = append(t.aliases, key)
	}

	sortLongestFirst(t.names)
	sortLongestFirst(t.aliases)
	return t
}

// Len returns the number of canonical names in the snapshot.
func (t *Tables) Len() int {
	return len(t.names)
}

// Lookup resolves a name case-insensitively to its canonical spelling and id.
func (t *Tables) Lookup(name string) (canonical, id string, ok bool) {
	canonical, ok = t.canonical[normalise(name)]
	if !ok {
		return "", "", false
	}
	return canonical, t.nameToID[canonical], true
}

// BuildAliasTable converts a name -> comma-separated aliases map into an
// alias -> name map. Aliases are trimmed and upper-cased; blanks are dropped.
// An alias claimed by several names belongs to the first in sorted order.
func BuildAliasTable(nameToAliases map[string]string) map[string]string {
	out := make(map[string]string)
	for _, name := range slices.Sorted(maps.Keys(nameToAliases)) {
		for _, alias := range strings.Split(nameToAliases[name], ",") {
			alias = normalise(alias)
			if alias == "" {
				continue
			}
			if _, taken := out[alias]; !taken {
				out[alias] = name
			}
		}
	}
	return out
}

func normalise(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// sortLongestFirst orders by length descending, then lexically, so equal-length
// candidates resolve the same way on every run.
func sortLongestFirst(s []string) {
	sort.Slice(s, func(i, j int) bool {
		if len(s[i]) != len(s[j]) {
			return len(s[i]) > len(s[j])
		}
		return s[i] < s[j]
	})
}
