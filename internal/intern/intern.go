// Package intern implements the global tag interner: a stable mapping
// between tag strings read from the input CSV and the small integer
// TagIDs the compression engines operate on.
//
// Grounded on the original TagTable (TagTable.cpp/.h): a forward map plus a
// reverse slice, bounded to 256 entries since TagID is a byte.
package intern

import (
	"errors"
	"fmt"
)

// TagID mirrors blockcompress.TagID without importing the root package, to
// keep this package free of a dependency cycle (blockcompress.TagNamer is
// satisfied structurally by *Table).
type TagID = uint8

// ErrAlphabetExhausted is returned by GetID once 256 distinct tags have
// already been interned.
var ErrAlphabetExhausted = errors.New("intern: tag alphabet exhausted (>256 distinct tags)")

// Table is a global tag interner. It is not safe for concurrent use; the
// plane orchestrator's concurrency model (§5) guarantees only the reading
// goroutine ever calls GetID, while the compressing goroutine only calls
// GetTag on IDs the reader has already assigned.
type Table struct {
	ids   map[string]TagID
	names []string
}

// NewTable constructs an empty interner with capacity for the full 256-tag
// alphabet.
func NewTable() *Table {
	return &Table{
		ids:   make(map[string]TagID, 256),
		names: make([]string, 0, 256),
	}
}

// GetID returns the stable ID for name, assigning a new one on first
// sighting. It returns ErrAlphabetExhausted if name is new and 256 tags
// have already been assigned.
func (t *Table) GetID(name string) (TagID, error) {
	if id, ok := t.ids[name]; ok {
		return id, nil
	}
	if len(t.names) >= 256 {
		return 0, fmt.Errorf("intern: interning %q: %w", name, ErrAlphabetExhausted)
	}
	id := TagID(len(t.names))
	t.ids[name] = id
	t.names = append(t.names, name)
	return id, nil
}

// GetTag inverts GetID, returning the name previously assigned to id.
func (t *Table) GetTag(id TagID) string {
	return t.names[id]
}

// Len returns the number of distinct tags interned so far.
func (t *Table) Len() int {
	return len(t.names)
}
