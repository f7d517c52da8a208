package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is a thread-safe in-memory Store. Each call holds the
// store mutex for its whole duration, which gives the same per-call
// atomicity the remote collaborator guarantees per row.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Row
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Row)}
}

// Insert appends a cloned row, generating an id when absent.
func (s *MemoryStore) Insert(_ context.Context, collection string, row Row) (string, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "", fmt.Errorf("collection required")
	}
	row = row.Clone()
	if row == nil {
		row = Row{}
	}
	if row.ID() == "" {
		row[IDField] = nextRowID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.collections[collection] {
		if existing.ID() == row.ID() {
			return "", fmt.Errorf("duplicate id %s in %s", row.ID(), collection)
		}
	}
	s.collections[collection] = append(s.collections[collection], row)
	return row.ID(), nil
}

// Update patches every matching row and returns the affected count.
func (s *MemoryStore) Update(_ context.Context, collection string, sel Selector, patch Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	rows := s.collections[collection]
	for i, row := range rows {
		if !sel.Matches(row) {
			continue
		}
		rows[i] = row.Merge(patch)
		affected++
	}
	return affected, nil
}

// Delete removes matching rows and returns their pre-removal captures.
func (s *MemoryStore) Delete(_ context.Context, collection string, sel Selector) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Row
	kept := s.collections[collection][:0]
	for _, row := range s.collections[collection] {
		if sel.Matches(row) {
			removed = append(removed, row.Clone())
			continue
		}
		kept = append(kept, row)
	}
	s.collections[collection] = kept
	return removed, nil
}

// Query returns clones of matching rows in insertion order.
func (s *MemoryStore) Query(_ context.Context, collection string, sel Selector) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Row
	for _, row := range s.collections[collection] {
		if sel.Matches(row) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

var rowCounter atomic.Uint64

func nextRowID() string {
	n := rowCounter.Add(1)
	return fmt.Sprintf("row-%d-%d", time.Now().UTC().UnixNano(), n)
}
