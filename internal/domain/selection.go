package domain

import (
	"sort"
	"strings"
)

// Selection is the diagnostic stack: an ordered set of symptom node ids.
type Selection []string

// NewSelection trims ids, drops empties and removes duplicates while keeping
// the first occurrence of each id.
func NewSelection(ids ...string) Selection {
	seen := make(map[string]bool, len(ids))
	out := make(Selection, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Set returns the selection as a lookup set.
func (s Selection) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(s))
	for _, id := range s {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is on the stack.
func (s Selection) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the stack with id appended unless it is already present.
func (s Selection) Add(id string) Selection {
	id = strings.TrimSpace(id)
	if id == "" || s.Contains(id) {
		return s
	}
	return append(s, id)
}

// Remove returns the stack without id.
func (s Selection) Remove(id string) Selection {
	id = strings.TrimSpace(id)
	out := make(Selection, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Key is an order-independent identity of the selection.
func (s Selection) Key() string {
	sorted := append([]string(nil), s...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
