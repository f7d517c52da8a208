package store

import (
	"context"
	"testing"

	lifecycle "github.com/goliatone/go-lifecycle"
)

func TestMemoryStoreInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Insert(ctx, "seats", Row{"status": "empty", "session_id": "sess-1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	rows, err := s.Query(ctx, "seats", ByID(id))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0]["status"] != "empty" {
		t.Fatalf("unexpected rows %+v", rows)
	}

	// returned rows are clones
	rows[0]["status"] = "locked"
	again, _ := s.Query(ctx, "seats", ByID(id))
	if again[0]["status"] != "empty" {
		t.Fatal("query result mutation leaked into the store")
	}
}

func TestMemoryStoreRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Insert(ctx, "seats", Row{"id": "seat-1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Insert(ctx, "seats", Row{"id": "seat-1"}); err == nil {
		t.Fatal("expected duplicate id rejection")
	}
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, _ := s.Insert(ctx, "seats", Row{"status": "empty"})

	n, err := s.Update(ctx, "seats", ByID(id).And("status", "empty"), Row{"status": "reserved", "claimed_by": "u-1"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one affected row, got %d", n)
	}

	// the same condition now misses: zero affected, no error
	n, err = s.Update(ctx, "seats", ByID(id).And("status", "empty"), Row{"status": "reserved", "claimed_by": "u-2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected condition miss, got %d affected", n)
	}

	rows, _ := s.Query(ctx, "seats", ByID(id))
	if rows[0]["claimed_by"] != "u-1" {
		t.Fatalf("losing writer overwrote the claim: %+v", rows[0])
	}
}

func TestMemoryStoreDeleteCapturesRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Insert(ctx, "participants", Row{"id": "p-1", "status": "pending", "session_id": "sess-1"})
	s.Insert(ctx, "participants", Row{"id": "p-2", "status": "approved", "session_id": "sess-1"})

	removed, err := s.Delete(ctx, "participants", Where("status", "pending"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(removed) != 1 || removed[0].ID() != "p-1" {
		t.Fatalf("unexpected capture %+v", removed)
	}

	left, _ := s.Query(ctx, "participants", Selector{})
	if len(left) != 1 || left[0].ID() != "p-2" {
		t.Fatalf("unexpected remainder %+v", left)
	}
}

func TestSelectorMatching(t *testing.T) {
	row := Row{"id": "s-1", "status": "ready", "slot": 3}

	if !(Selector{}).Matches(row) {
		t.Fatal("empty selector must match everything")
	}
	if !Where("status", "ready", "slot", 3).Matches(row) {
		t.Fatal("expected match on every condition")
	}
	if Where("status", "ready").And("slot", 4).Matches(row) {
		t.Fatal("expected miss on slot")
	}
}

func TestTransientClassification(t *testing.T) {
	err := Transient(context.DeadlineExceeded, "update", "seats")
	if !lifecycle.IsTransient(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
	if Transient(nil, "update", "seats") != nil {
		t.Fatal("nil in, nil out")
	}
}
