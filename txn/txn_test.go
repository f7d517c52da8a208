package txn

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/goliatone/go-errors"
	lifecycle "github.com/goliatone/go-lifecycle"
	"github.com/goliatone/go-lifecycle/store"
)

// flakyStore fails selected operations so tests can force mid-flight
// transaction failures.
type flakyStore struct {
	store.Store
	failInsert map[string]error
	failDelete map[string]error
}

func (s *flakyStore) Insert(ctx context.Context, collection string, row store.Row) (string, error) {
	if err := s.failInsert[collection]; err != nil {
		return "", err
	}
	return s.Store.Insert(ctx, collection, row)
}

func (s *flakyStore) Delete(ctx context.Context, collection string, sel store.Selector) ([]store.Row, error) {
	if err := s.failDelete[collection]; err != nil {
		return nil, err
	}
	return s.Store.Delete(ctx, collection, sel)
}

func TestExecuteCommitsAllSteps(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Insert(ctx, "seats", store.Row{"id": "seat-1", "status": "empty", "session_id": "sess-1"})

	exec := NewExecutor(mem)
	outcome, err := exec.Execute(ctx, []Step{
		ConditionalUpdate("claim_seat", "seats",
			store.ByID("seat-1").And("status", "empty"),
			store.Row{"status": "reserved", "claimed_by": "user-1"}),
		Insert("seed_participant", "participants",
			store.Row{"status": "pending", "session_id": "sess-1", "seat_id": "seat-1"}),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if outcome.InsertedID("seed_participant") == "" {
		t.Fatal("expected inserted participant id in outcome")
	}
	seats, _ := mem.Query(ctx, "seats", store.ByID("seat-1"))
	if seats[0]["status"] != "reserved" || seats[0]["claimed_by"] != "user-1" {
		t.Fatalf("unexpected seat row %+v", seats[0])
	}
}

func TestExecuteRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Insert(ctx, "seats", store.Row{"id": "seat-1", "status": "empty", "session_id": "sess-1"})

	flaky := &flakyStore{
		Store:      mem,
		failInsert: map[string]error{"participants": fmt.Errorf("write refused")},
	}

	exec := NewExecutor(flaky)
	_, err := exec.Execute(ctx, []Step{
		ConditionalUpdate("claim_seat", "seats",
			store.ByID("seat-1").And("status", "empty"),
			store.Row{"status": "reserved", "claimed_by": "user-1"}),
		Insert("seed_participant", "participants",
			store.Row{"status": "pending", "session_id": "sess-1"}),
	})
	if err == nil {
		t.Fatal("expected transaction failure")
	}
	if lifecycle.ErrorCode(err) != lifecycle.ErrCodeTransactionFailed {
		t.Fatalf("expected transaction error, got %v", err)
	}

	var ge *apperrors.Error
	if !stderrors.As(err, &ge) {
		t.Fatalf("expected taxonomy error, got %T", err)
	}
	if ge.Metadata["step_name"] != "seed_participant" {
		t.Fatalf("unexpected failing step %v", ge.Metadata["step_name"])
	}
	if ge.Metadata["rollback_attempted"] != true || ge.Metadata["rollback_complete"] != true {
		t.Fatalf("unexpected rollback metadata %+v", ge.Metadata)
	}

	// the claim was compensated back to its pre-image
	seats, _ := mem.Query(ctx, "seats", store.ByID("seat-1"))
	if seats[0]["status"] != "empty" {
		t.Fatalf("expected seat restored to empty, got %+v", seats[0])
	}
}

func TestRollbackDropsPatchAddedFields(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	// the seat has never been claimed, so the pre-image has no claimed_by
	mem.Insert(ctx, "seats", store.Row{"id": "seat-1", "status": "empty", "session_id": "sess-1"})

	flaky := &flakyStore{
		Store:      mem,
		failInsert: map[string]error{"participants": fmt.Errorf("write refused")},
	}

	exec := NewExecutor(flaky)
	_, err := exec.Execute(ctx, []Step{
		ConditionalUpdate("claim_seat", "seats",
			store.ByID("seat-1").And("status", "empty"),
			store.Row{"status": "reserved", "claimed_by": "user-1"}),
		Insert("seed_participant", "participants",
			store.Row{"status": "pending", "session_id": "sess-1"}),
	})
	if err == nil {
		t.Fatal("expected transaction failure")
	}

	// rollback must restore the exact pre-image, not merge it over the
	// patched row: fields the patch introduced have to disappear
	seats, _ := mem.Query(ctx, "seats", store.ByID("seat-1"))
	if got, ok := seats[0]["claimed_by"]; ok {
		t.Fatalf("rollback kept a field the patch added: claimed_by=%v, row=%+v", got, seats[0])
	}
	if seats[0]["status"] != "empty" || seats[0]["session_id"] != "sess-1" {
		t.Fatalf("unexpected restored row %+v", seats[0])
	}
}

func TestRollbackLogsRenderStructuredFields(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Insert(ctx, "seats", store.Row{"id": "seat-1", "status": "empty"})

	flaky := &flakyStore{
		Store:      mem,
		failInsert: map[string]error{"participants": fmt.Errorf("write refused")},
	}

	buf := &bytes.Buffer{}
	exec := NewExecutor(flaky, WithLogger(lifecycle.NewFmtLogger(buf)))
	exec.Execute(ctx, []Step{
		ConditionalUpdate("claim_seat", "seats",
			store.ByID("seat-1").And("status", "empty"),
			store.Row{"status": "reserved"}),
		Insert("seed_participant", "participants", store.Row{"status": "pending"}),
	})

	logged := buf.String()
	if !strings.Contains(logged, "step=claim_seat") {
		t.Fatalf("expected step field in compensation log, got %q", logged)
	}
	if strings.Contains(logged, "%!") {
		t.Fatalf("log output mangled by printf fallback: %q", logged)
	}
}

func TestExecutePreconditionMissFailsStep(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Insert(ctx, "seats", store.Row{"id": "seat-1", "status": "reserved", "claimed_by": "user-0"})

	exec := NewExecutor(mem)
	_, err := exec.Execute(ctx, []Step{
		ConditionalUpdate("claim_seat", "seats",
			store.ByID("seat-1").And("status", "empty"),
			store.Row{"status": "reserved", "claimed_by": "user-1"}),
	})
	if lifecycle.ErrorCode(err) != lifecycle.ErrCodePreconditionFailed {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	// losing claim must not overwrite the winner
	seats, _ := mem.Query(ctx, "seats", store.ByID("seat-1"))
	if seats[0]["claimed_by"] != "user-0" {
		t.Fatalf("conditional miss mutated the row: %+v", seats[0])
	}
}

func TestExecuteRestoresDeletedRows(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Insert(ctx, "participants", store.Row{"id": "p-1", "status": "rejected", "session_id": "sess-1"})

	exec := NewExecutor(mem)
	_, err := exec.Execute(ctx, []Step{
		Delete("purge_rejected", "participants", store.Where("status", "rejected")),
		ConditionalUpdate("advance", "sessions", store.ByID("missing"), store.Row{"status": "active"}),
	})
	if err == nil {
		t.Fatal("expected failure on second step")
	}

	// the deleted row was re-inserted by compensation
	rows, _ := mem.Query(ctx, "participants", store.ByID("p-1"))
	if len(rows) != 1 || rows[0]["status"] != "rejected" {
		t.Fatalf("expected deleted row restored, got %+v", rows)
	}
}

func TestExecuteReportsCompensationFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Insert(ctx, "drafts", store.Row{"id": "d-1", "status": "drafting"})

	// inserting into participants fails, and compensating the earlier
	// insert fails too because deletes are refused
	flaky := &flakyStore{
		Store:      mem,
		failInsert: map[string]error{"participants": fmt.Errorf("write refused")},
		failDelete: map[string]error{"audit": fmt.Errorf("delete refused")},
	}

	exec := NewExecutor(flaky)
	_, err := exec.Execute(ctx, []Step{
		Insert("record_audit", "audit", store.Row{"op": "generate"}),
		Insert("seed_participant", "participants", store.Row{"status": "pending"}),
	})
	if err == nil {
		t.Fatal("expected failure")
	}

	var ge *apperrors.Error
	if !stderrors.As(err, &ge) {
		t.Fatalf("expected taxonomy error, got %T", err)
	}
	if ge.Metadata["compensation_error"] == nil {
		t.Fatalf("expected compensation error recorded, got %+v", ge.Metadata)
	}
	if ge.Metadata["rollback_complete"] != false {
		t.Fatalf("rollback must not be reported complete: %+v", ge.Metadata)
	}
}
