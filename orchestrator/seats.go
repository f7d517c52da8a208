package orchestrator

import (
	"context"
	"fmt"

	lifecycle "github.com/goliatone/go-lifecycle"
	"github.com/goliatone/go-lifecycle/runner"
	"github.com/goliatone/go-lifecycle/store"
	"github.com/goliatone/go-lifecycle/txn"
)

// ClaimResult reports a committed seat claim.
type ClaimResult struct {
	Seat TransitionResult
	// ParticipantID is the pending participant seeded by the claim.
	ParticipantID string
	ClaimedBy     string
}

// ClaimSeat atomically reserves an empty seat for a user and seeds the
// pending participant bound to it. The reservation is conditioned on
// the seat still being empty: of N concurrent claims for one seat
// exactly one commits and the rest fail with a seat-unavailable
// conflict, never with a partial write.
func (o *Orchestrator) ClaimSeat(ctx context.Context, sessionID, seatID, userID string) (ClaimResult, error) {
	seat, err := o.loadEntity(ctx, lifecycle.KindSeat, seatID)
	if err != nil {
		return ClaimResult{}, err
	}
	if sid := rowSessionID(lifecycle.KindSeat, seat); sid != sessionID {
		return ClaimResult{}, lifecycle.CloneError(lifecycle.ErrNotFound,
			fmt.Sprintf("seat %s does not belong to session %s", seatID, sessionID),
			nil,
			map[string]any{"seat_id": seatID, "session_id": sessionID})
	}
	if err := o.validator.Validate(ctx, lifecycle.KindSeat, sessionID, rowState(seat), lifecycle.SeatReserved, false); err != nil {
		return ClaimResult{}, err
	}

	outcome, err := runner.Query(ctx, o.retry, func(ctx context.Context) (txn.Outcome, error) {
		return o.executor.Execute(ctx, []txn.Step{
			txn.ConditionalUpdate("claim_seat", o.collections.Seats,
				store.ByID(seatID).
					And(FieldSessionID, sessionID).
					And(FieldStatus, string(lifecycle.SeatEmpty)),
				store.Row{
					FieldStatus:    string(lifecycle.SeatReserved),
					FieldClaimedBy: userID,
				}),
			txn.Insert("seed_participant", o.collections.Participants,
				store.Row{
					FieldSessionID: sessionID,
					FieldSeatID:    seatID,
					FieldStatus:    string(lifecycle.ParticipantPending),
				}),
		})
	})
	if err != nil {
		if lifecycle.ErrorCode(err) == lifecycle.ErrCodePreconditionFailed {
			return ClaimResult{}, lifecycle.CloneError(lifecycle.ErrSeatUnavailable,
				fmt.Sprintf("seat %s is no longer available", seatID),
				err,
				map[string]any{"seat_id": seatID, "session_id": sessionID})
		}
		return ClaimResult{}, err
	}

	result := ClaimResult{
		Seat: TransitionResult{
			Kind:      lifecycle.KindSeat,
			EntityID:  seatID,
			SessionID: sessionID,
			From:      lifecycle.SeatEmpty,
			To:        lifecycle.SeatReserved,
		},
		ParticipantID: outcome.InsertedID("seed_participant"),
		ClaimedBy:     userID,
	}
	o.publish(ctx, result.Seat, "claim_seat", map[string]any{
		"claimed_by":     userID,
		"participant_id": result.ParticipantID,
	})
	return result, nil
}

// ReleaseSeat gives a reserved seat back and removes the pending
// participant seeded by the claim.
func (o *Orchestrator) ReleaseSeat(ctx context.Context, sessionID, seatID string) (TransitionResult, error) {
	seat, err := o.loadEntity(ctx, lifecycle.KindSeat, seatID)
	if err != nil {
		return TransitionResult{}, err
	}
	if sid := rowSessionID(lifecycle.KindSeat, seat); sid != sessionID {
		return TransitionResult{}, lifecycle.CloneError(lifecycle.ErrNotFound,
			fmt.Sprintf("seat %s does not belong to session %s", seatID, sessionID),
			nil,
			map[string]any{"seat_id": seatID, "session_id": sessionID})
	}
	if err := o.validator.Validate(ctx, lifecycle.KindSeat, sessionID, rowState(seat), lifecycle.SeatEmpty, false); err != nil {
		return TransitionResult{}, err
	}

	_, err = runner.Query(ctx, o.retry, func(ctx context.Context) (txn.Outcome, error) {
		return o.executor.Execute(ctx, []txn.Step{
			txn.ConditionalUpdate("release_seat", o.collections.Seats,
				store.ByID(seatID).
					And(FieldSessionID, sessionID).
					And(FieldStatus, string(lifecycle.SeatReserved)),
				store.Row{
					FieldStatus:    string(lifecycle.SeatEmpty),
					FieldClaimedBy: "",
				}),
			txn.Delete("remove_seed", o.collections.Participants,
				store.Where(
					FieldSeatID, seatID,
					FieldStatus, string(lifecycle.ParticipantPending))),
		})
	})
	if err != nil {
		return TransitionResult{}, err
	}

	result := TransitionResult{
		Kind:      lifecycle.KindSeat,
		EntityID:  seatID,
		SessionID: sessionID,
		From:      lifecycle.SeatReserved,
		To:        lifecycle.SeatEmpty,
	}
	o.publish(ctx, result, "release_seat", nil)
	return result, nil
}

// ReadySeat marks a reserved seat ready for party lock.
func (o *Orchestrator) ReadySeat(ctx context.Context, sessionID, seatID string) (TransitionResult, error) {
	seat, err := o.loadEntity(ctx, lifecycle.KindSeat, seatID)
	if err != nil {
		return TransitionResult{}, err
	}
	if sid := rowSessionID(lifecycle.KindSeat, seat); sid != sessionID {
		return TransitionResult{}, lifecycle.CloneError(lifecycle.ErrNotFound,
			fmt.Sprintf("seat %s does not belong to session %s", seatID, sessionID),
			nil,
			map[string]any{"seat_id": seatID, "session_id": sessionID})
	}
	return o.transition(ctx, lifecycle.KindSeat, seatID, lifecycle.SeatReady, false, nil, "ready_seat")
}

// LockPartyResult reports a committed party lock.
type LockPartyResult struct {
	SessionID string
	// LockedSeatIDs lists every seat the lock froze, in query order.
	LockedSeatIDs []string
	SessionState  lifecycle.State
}

// LockParty freezes the session's ready seats and advances the session
// from forming_party to generating_participants, as one compensated
// transaction. The operation is idempotency-keyed: retried calls with
// the same key inside the replay window return the original result
// without touching the store.
func (o *Orchestrator) LockParty(ctx context.Context, sessionID, idempotencyKey string) (LockPartyResult, error) {
	return o.locks.RunOnce(ctx, idempotencyKey, 0, func(ctx context.Context) (LockPartyResult, error) {
		return o.lockParty(ctx, sessionID)
	})
}

func (o *Orchestrator) lockParty(ctx context.Context, sessionID string) (LockPartyResult, error) {
	session, err := o.loadEntity(ctx, lifecycle.KindSession, sessionID)
	if err != nil {
		return LockPartyResult{}, err
	}
	from := rowState(session)
	if err := o.validator.Validate(ctx, lifecycle.KindSession, sessionID, from, lifecycle.SessionGeneratingParticipants, false); err != nil {
		return LockPartyResult{}, err
	}

	ready, err := o.store.Query(ctx, o.collections.Seats,
		store.Where(FieldSessionID, sessionID, FieldStatus, string(lifecycle.SeatReady)))
	if err != nil {
		return LockPartyResult{}, err
	}

	steps := make([]txn.Step, 0, len(ready)+1)
	seatIDs := make([]string, 0, len(ready))
	for _, seat := range ready {
		seatIDs = append(seatIDs, seat.ID())
		steps = append(steps, txn.ConditionalUpdate(
			fmt.Sprintf("lock_seat_%s", seat.ID()), o.collections.Seats,
			store.ByID(seat.ID()).And(FieldStatus, string(lifecycle.SeatReady)),
			store.Row{FieldStatus: string(lifecycle.SeatLocked)}))
	}
	steps = append(steps, txn.ConditionalUpdate("advance_session", o.collections.Sessions,
		store.ByID(sessionID).And(FieldStatus, string(from)),
		store.Row{FieldStatus: string(lifecycle.SessionGeneratingParticipants)}))

	if _, err := runner.Query(ctx, o.retry, func(ctx context.Context) (txn.Outcome, error) {
		return o.executor.Execute(ctx, steps)
	}); err != nil {
		return LockPartyResult{}, err
	}

	sessionResult := TransitionResult{
		Kind:      lifecycle.KindSession,
		EntityID:  sessionID,
		SessionID: sessionID,
		From:      from,
		To:        lifecycle.SessionGeneratingParticipants,
	}
	for _, seatID := range seatIDs {
		o.publish(ctx, TransitionResult{
			Kind:      lifecycle.KindSeat,
			EntityID:  seatID,
			SessionID: sessionID,
			From:      lifecycle.SeatReady,
			To:        lifecycle.SeatLocked,
		}, "lock_party", nil)
	}
	o.publish(ctx, sessionResult, "lock_party", map[string]any{"locked_seats": len(seatIDs)})

	return LockPartyResult{
		SessionID:     sessionID,
		LockedSeatIDs: seatIDs,
		SessionState:  lifecycle.SessionGeneratingParticipants,
	}, nil
}
