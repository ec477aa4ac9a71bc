// Package routing maintains per-source routing tables over ledger prefixes
// and derives transitive routes from announcements.
//
// Ledger prefixes are opaque strings, dot-terminated by convention. Matching
// is ordinary string prefixing, not label-wise.
package routing

import (
	"sort"
	"strings"
)

// PrefixMap maps ledger prefixes to values and supports longest-prefix
// resolution of full addresses against the stored prefixes.
type PrefixMap[V any] struct {
	prefixes []string // kept sorted
	items    map[string]V
}

// NewPrefixMap creates an empty PrefixMap.
func NewPrefixMap[V any]() *PrefixMap[V] {
	return &PrefixMap[V]{items: make(map[string]V)}
}

// Size returns the number of stored prefixes.
func (m *PrefixMap[V]) Size() int {
	return len(m.prefixes)
}

// Keys returns the stored prefixes in sorted order.
func (m *PrefixMap[V]) Keys() []string {
	keys := make([]string, len(m.prefixes))
	copy(keys, m.prefixes)
	return keys
}

// Insert stores value under prefix, replacing any previous value, and
// returns the stored value.
func (m *PrefixMap[V]) Insert(prefix string, value V) V {
	if _, exists := m.items[prefix]; !exists {
		i := sort.SearchStrings(m.prefixes, prefix)
		m.prefixes = append(m.prefixes, "")
		copy(m.prefixes[i+1:], m.prefixes[i:])
		m.prefixes[i] = prefix
	}
	m.items[prefix] = value
	return value
}

// Get performs an exact-prefix lookup.
func (m *PrefixMap[V]) Get(prefix string) (V, bool) {
	v, ok := m.items[prefix]
	return v, ok
}

// Resolve finds the entry whose prefix is the longest stored prefix of key.
func (m *PrefixMap[V]) Resolve(key string) (V, bool) {
	var zero V
	best := -1
	for i, prefix := range m.prefixes {
		if strings.HasPrefix(key, prefix) && (best < 0 || len(prefix) > len(m.prefixes[best])) {
			best = i
		}
	}
	if best < 0 {
		return zero, false
	}
	return m.items[m.prefixes[best]], true
}

// ResolvePrefix is Resolve, but also reports which stored prefix matched.
func (m *PrefixMap[V]) ResolvePrefix(key string) (V, string, bool) {
	var zero V
	best := -1
	for i, prefix := range m.prefixes {
		if strings.HasPrefix(key, prefix) && (best < 0 || len(prefix) > len(m.prefixes[best])) {
			best = i
		}
	}
	if best < 0 {
		return zero, "", false
	}
	return m.items[m.prefixes[best]], m.prefixes[best], true
}

// Delete removes a prefix, reporting whether it was present.
func (m *PrefixMap[V]) Delete(prefix string) bool {
	if _, ok := m.items[prefix]; !ok {
		return false
	}
	delete(m.items, prefix)
	i := sort.SearchStrings(m.prefixes, prefix)
	m.prefixes = append(m.prefixes[:i], m.prefixes[i+1:]...)
	return true
}

// Each calls fn for every (value, prefix) pair in prefix-sorted order.
// fn must not mutate the map.
func (m *PrefixMap[V]) Each(fn func(value V, prefix string)) {
	for _, prefix := range m.prefixes {
		fn(m.items[prefix], prefix)
	}
}

// AppliesToPrefix returns the shortest prefix of targetAddress that still
// routes unambiguously to storedPrefix among the currently stored prefixes.
//
// A candidate qualifies when longest-prefix resolution of the candidate lands
// on storedPrefix and no other stored prefix extends the candidate. Candidates
// grow segment-wise at "." boundaries; if none qualifies the full
// targetAddress is returned. Used to compute compact broadcast prefixes.
func (m *PrefixMap[V]) AppliesToPrefix(storedPrefix, targetAddress string) string {
	if targetAddress == storedPrefix {
		return storedPrefix
	}
	for _, candidate := range segmentPrefixes(targetAddress) {
		if _, resolved, ok := m.ResolvePrefix(candidate); !ok || resolved != storedPrefix {
			continue
		}
		if m.hasExtension(candidate, storedPrefix) {
			continue
		}
		return candidate
	}
	return targetAddress
}

// hasExtension reports whether any stored prefix other than except starts
// with candidate, which would make candidate ambiguous as a broadcast prefix.
func (m *PrefixMap[V]) hasExtension(candidate, except string) bool {
	for _, prefix := range m.prefixes {
		if prefix == except {
			continue
		}
		if strings.HasPrefix(prefix, candidate) {
			return true
		}
	}
	return false
}

// segmentPrefixes enumerates the dot-terminated prefixes of address from
// shortest to longest, ending with the full address.
func segmentPrefixes(address string) []string {
	out := []string{""}
	for i, ch := range address {
		if ch == '.' {
			out = append(out, address[:i+1])
		}
	}
	if len(out) == 0 || out[len(out)-1] != address {
		out = append(out, address)
	}
	return out
}
