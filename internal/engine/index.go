package engine

import "strings"

// MessageEntry is one indexed user message.
type MessageEntry struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Index is a bounded, de-duplicated list of entries, newest first. It is not
// safe for concurrent use; the engine only touches it from its event loop.
type Index struct {
	max     int
	entries []MessageEntry
	ids     map[string]struct{}
}

// NewIndex creates an empty index holding at most max entries.
func NewIndex(max int) *Index {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Index{max: max, ids: make(map[string]struct{})}
}

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.entries) }

// Cap returns the bound.
func (x *Index) Cap() int { return x.max }

// Has reports whether id is indexed.
func (x *Index) Has(id string) bool {
	_, ok := x.ids[id]
	return ok
}

// Get returns the entry for id.
func (x *Index) Get(id string) (MessageEntry, bool) {
	if !x.Has(id) {
		return MessageEntry{}, false
	}
	for _, e := range x.entries {
		if e.ID == id {
			return e, true
		}
	}
	return MessageEntry{}, false
}

// Insert puts e at the head and evicts the oldest entry past the bound.
// A duplicate id is ignored and reported as false.
func (x *Index) Insert(e MessageEntry) bool {
	if x.Has(e.ID) {
		return false
	}
	x.entries = append(x.entries, MessageEntry{})
	copy(x.entries[1:], x.entries)
	x.entries[0] = e
	x.ids[e.ID] = struct{}{}

	for len(x.entries) > x.max {
		tail := x.entries[len(x.entries)-1]
		delete(x.ids, tail.ID)
		x.entries = x.entries[:len(x.entries)-1]
	}
	return true
}

// Load appends persisted entries (already newest first) behind whatever is
// indexed, skipping duplicates and stopping at the bound.
func (x *Index) Load(entries []MessageEntry) int {
	n := 0
	for _, e := range entries {
		if len(x.entries) >= x.max {
			break
		}
		if e.ID == "" || x.Has(e.ID) {
			continue
		}
		x.entries = append(x.entries, e)
		x.ids[e.ID] = struct{}{}
		n++
	}
	return n
}

// Entries returns a copy, newest first.
func (x *Index) Entries() []MessageEntry {
	out := make([]MessageEntry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Filter returns a copy of the entries whose text contains query, ignoring
// case. An empty query returns everything.
func (x *Index) Filter(query string) []MessageEntry {
	return FilterEntries(x.entries, query)
}

// FilterEntries is the case-insensitive substring match used by every
// search surface.
func FilterEntries(entries []MessageEntry, query string) []MessageEntry {
	q := strings.ToLower(query)
	out := make([]MessageEntry, 0, len(entries))
	for _, e := range entries {
		if q == "" || strings.Contains(strings.ToLower(e.Text), q) {
			out = append(out, e)
		}
	}
	return out
}
