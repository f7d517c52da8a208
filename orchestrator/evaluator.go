package orchestrator

import (
	"context"

	lifecycle "github.com/goliatone/go-lifecycle"
	"github.com/goliatone/go-lifecycle/store"
)

// Row field names shared by every collection.
const (
	FieldStatus    = "status"
	FieldSessionID = "session_id"
	FieldSeatID    = "seat_id"
	FieldClaimedBy = "claimed_by"
)

// Collections names the store collections backing each entity kind.
type Collections struct {
	Sessions     string
	Seats        string
	Participants string
	Drafts       string
}

// DefaultCollections returns the stock collection names.
func DefaultCollections() Collections {
	return Collections{
		Sessions:     "sessions",
		Seats:        "seats",
		Participants: "participants",
		Drafts:       "drafts",
	}
}

// For maps an entity kind to its collection name.
func (c Collections) For(kind lifecycle.EntityKind) string {
	switch lifecycle.NormalizeKind(kind) {
	case lifecycle.KindSeat:
		return c.Seats
	case lifecycle.KindParticipant:
		return c.Participants
	case lifecycle.KindDraft:
		return c.Drafts
	default:
		return c.Sessions
	}
}

// Evaluator checks requirement facts against the store. Every check
// queries fresh state; nothing is cached between calls, so a seat
// released a millisecond ago already counts against the minimum.
type Evaluator struct {
	store       store.Store
	collections Collections
}

// NewEvaluator builds an evaluator over the given store.
func NewEvaluator(s store.Store, collections Collections) *Evaluator {
	return &Evaluator{store: s, collections: collections}
}

// Evaluate checks every applicable clause of req for the session and
// returns the aggregate result. All clauses are evaluated even after
// the first failure so callers can surface every unmet reason at once.
func (e *Evaluator) Evaluate(ctx context.Context, sessionID string, req lifecycle.Requirement) (lifecycle.Result, error) {
	result := lifecycle.Result{Valid: true}
	if req.Empty() {
		return result, nil
	}

	if req.MinReadySeats > 0 {
		count, err := e.readySeatCount(ctx, sessionID)
		if err != nil {
			return lifecycle.Result{}, err
		}
		if count < req.MinReadySeats {
			result.Valid = false
			result.UnmetReasons = append(result.UnmetReasons, lifecycle.ReasonMinReadySeats(req.MinReadySeats))
		}
	}

	if req.ApprovedDraft {
		ok, err := e.hasApproved(ctx, e.collections.Drafts, sessionID)
		if err != nil {
			return lifecycle.Result{}, err
		}
		if !ok {
			result.Valid = false
			result.UnmetReasons = append(result.UnmetReasons, lifecycle.ReasonApprovedDraft)
		}
	}

	if req.ApprovedParticipant {
		ok, err := e.hasApproved(ctx, e.collections.Participants, sessionID)
		if err != nil {
			return lifecycle.Result{}, err
		}
		if !ok {
			result.Valid = false
			result.UnmetReasons = append(result.UnmetReasons, lifecycle.ReasonApprovedParticipant)
		}
	}

	return result, nil
}

// readySeatCount counts the session's seats in ready or locked. Locked
// seats stay counted so re-evaluation after the party locks still
// passes.
func (e *Evaluator) readySeatCount(ctx context.Context, sessionID string) (int, error) {
	count := 0
	for _, status := range []lifecycle.State{lifecycle.SeatReady, lifecycle.SeatLocked} {
		rows, err := e.store.Query(ctx, e.collections.Seats,
			store.Where(FieldSessionID, sessionID, FieldStatus, string(status)))
		if err != nil {
			return 0, err
		}
		count += len(rows)
	}
	return count, nil
}

func (e *Evaluator) hasApproved(ctx context.Context, collection, sessionID string) (bool, error) {
	rows, err := e.store.Query(ctx, collection,
		store.Where(FieldSessionID, sessionID, FieldStatus, "approved"))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}
