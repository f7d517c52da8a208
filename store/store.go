// Package store defines the persistence collaborator contract consumed
// by the lifecycle orchestrator, plus in-memory and database/sql
// implementations. The contract is deliberately narrow: single-row
// operations with field-equality selectors. Selectors may condition an
// update or delete on the current value of a field, which is how seat
// claims stay race-safe without cross-row atomicity.
package store

import (
	"context"
	"fmt"
	"strings"

	lifecycle "github.com/goliatone/go-lifecycle"
)

// IDField is the row field every implementation treats as primary key.
const IDField = "id"

// Row is one persisted record. Rows returned from a Store are clones;
// mutating them does not affect stored state.
type Row map[string]any

// ID returns the row's primary key, or "".
func (r Row) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns the row with every field of patch applied over it.
func (r Row) Merge(patch Row) Row {
	out := r.Clone()
	if out == nil {
		out = make(Row, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Selector matches rows by field equality. An empty selector matches
// every row in a collection. Including a status field in the selector
// of an Update is the conditional-claim primitive: the mutation applies
// only to rows whose persisted value still matches.
type Selector struct {
	Match map[string]any
}

// ByID selects the single row with the given primary key.
func ByID(id string) Selector {
	return Selector{Match: map[string]any{IDField: id}}
}

// Where builds a selector from field/value pairs.
func Where(pairs ...any) Selector {
	match := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		field, ok := pairs[i].(string)
		if !ok {
			continue
		}
		match[field] = pairs[i+1]
	}
	return Selector{Match: match}
}

// And returns a copy of the selector with one more equality condition.
func (s Selector) And(field string, value any) Selector {
	match := make(map[string]any, len(s.Match)+1)
	for k, v := range s.Match {
		match[k] = v
	}
	match[field] = value
	return Selector{Match: match}
}

// Matches reports whether the row satisfies every condition.
func (s Selector) Matches(r Row) bool {
	for field, want := range s.Match {
		if fmt.Sprint(r[field]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func (s Selector) String() string {
	if len(s.Match) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(s.Match))
	for field, value := range s.Match {
		parts = append(parts, fmt.Sprintf("%s=%v", field, value))
	}
	return strings.Join(parts, ",")
}

// Store is the remote persistence collaborator. Implementations only
// guarantee per-row atomicity; multi-step consistency is layered on top
// by the txn package.
type Store interface {
	// Insert persists a new row and returns its id. When the row
	// carries no id the implementation generates one.
	Insert(ctx context.Context, collection string, row Row) (string, error)
	// Update applies patch to every row matching sel and returns the
	// affected count. A conditional update that matches nothing
	// affects zero rows and returns no error.
	Update(ctx context.Context, collection string, sel Selector, patch Row) (int, error)
	// Delete removes matching rows and returns them as captured before
	// removal, so callers can re-insert on compensation.
	Delete(ctx context.Context, collection string, sel Selector) ([]Row, error)
	// Query returns clones of matching rows.
	Query(ctx context.Context, collection string, sel Selector) ([]Row, error)
}

// Transient wraps a store failure as retry-eligible. Implementations
// use it for any outcome lacking a clear precondition-failed signal.
func Transient(err error, op, collection string) error {
	if err == nil {
		return nil
	}
	return lifecycle.NewTransient(err, fmt.Sprintf("store %s %s", op, collection))
}
