package orchestrator

import (
	"context"
	"fmt"

	"github.com/goliatone/go-errors"
	lifecycle "github.com/goliatone/go-lifecycle"
	"github.com/goliatone/go-lifecycle/store"
)

// ApproveParticipant accepts a generated participant. Approval is
// terminal; nothing moves a participant out of approved.
func (o *Orchestrator) ApproveParticipant(ctx context.Context, participantID string) (TransitionResult, error) {
	return o.transition(ctx, lifecycle.KindParticipant, participantID, lifecycle.ParticipantApproved, false, nil, "approve_participant")
}

// RejectParticipant sends a generated participant back for another
// pass. Rejection is recoverable through regeneration.
func (o *Orchestrator) RejectParticipant(ctx context.Context, participantID string, reason string) (TransitionResult, error) {
	var patch store.Row
	if reason != "" {
		patch = store.Row{"rejection_reason": reason}
	}
	return o.transition(ctx, lifecycle.KindParticipant, participantID, lifecycle.ParticipantRejected, false, patch, "reject_participant")
}

// StageInput hands the generator one participant to produce content
// for.
type StageInput struct {
	SessionID     string
	ParticipantID string
	SeatID        string
}

// StageOutput is the generated content merged onto the participant row.
type StageOutput struct {
	Content store.Row
}

// GenerateFunc produces content for one participant. Implementations
// live outside this module; the orchestrator only records outcomes.
type GenerateFunc func(ctx context.Context, in StageInput) (StageOutput, error)

// RegenerateParticipant runs the generator against a rejected
// participant and moves it back to generated with fresh content.
func (o *Orchestrator) RegenerateParticipant(ctx context.Context, participantID string, generate GenerateFunc) (TransitionResult, error) {
	row, err := o.loadEntity(ctx, lifecycle.KindParticipant, participantID)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := o.validator.Validate(ctx, lifecycle.KindParticipant,
		rowSessionID(lifecycle.KindParticipant, row), rowState(row), lifecycle.ParticipantGenerated, false); err != nil {
		return TransitionResult{}, err
	}

	out, err := generate(ctx, stageInputFor(row))
	if err != nil {
		return TransitionResult{}, errors.Wrap(err, errors.CategoryExternal,
			fmt.Sprintf("regenerate participant %s", participantID)).
			WithTextCode("LIFECYCLE_GENERATION_FAILED")
	}
	return o.transition(ctx, lifecycle.KindParticipant, participantID,
		lifecycle.ParticipantGenerated, false, out.Content, "regenerate_participant")
}

// GenerateParticipants runs the generator over every pending
// participant of a session in generating_participants, then advances
// the session to participant_review. A generator failure stops the
// pass: already generated participants keep their content, the rest
// stay pending, and the session does not advance, so the operation can
// be re-run.
func (o *Orchestrator) GenerateParticipants(ctx context.Context, sessionID string, generate GenerateFunc) (TransitionResult, error) {
	session, err := o.loadEntity(ctx, lifecycle.KindSession, sessionID)
	if err != nil {
		return TransitionResult{}, err
	}
	if state := rowState(session); state != lifecycle.SessionGeneratingParticipants {
		return TransitionResult{}, lifecycle.NewInvalidTransition(lifecycle.KindSession,
			state, lifecycle.SessionParticipantReview,
			o.registry.AllowedTargets(lifecycle.KindSession, state))
	}

	pending, err := o.store.Query(ctx, o.collections.Participants,
		store.Where(FieldSessionID, sessionID, FieldStatus, string(lifecycle.ParticipantPending)))
	if err != nil {
		return TransitionResult{}, err
	}

	for _, row := range pending {
		out, err := generate(ctx, stageInputFor(row))
		if err != nil {
			return TransitionResult{}, errors.Wrap(err, errors.CategoryExternal,
				fmt.Sprintf("generate participant %s", row.ID())).
				WithTextCode("LIFECYCLE_GENERATION_FAILED")
		}
		if _, err := o.transition(ctx, lifecycle.KindParticipant, row.ID(),
			lifecycle.ParticipantGenerated, false, out.Content, "generate_participant"); err != nil {
			return TransitionResult{}, err
		}
	}

	return o.TransitionSession(ctx, sessionID, lifecycle.SessionParticipantReview)
}

// RecordGeneration commits a draft generation outcome. Success persists
// the generated payload and advances generating to generated; failure
// falls back to drafting for another attempt. The generator itself runs
// upstream; this only records what it produced.
func (o *Orchestrator) RecordGeneration(ctx context.Context, draftID string, out StageOutput, genErr error) (TransitionResult, error) {
	if genErr != nil {
		result, err := o.TransitionDraft(ctx, draftID, lifecycle.DraftDrafting)
		if err != nil {
			return TransitionResult{}, err
		}
		lifecycle.WithLoggerFields(o.logger, map[string]any{"draft_id": draftID}).
			Warn("draft generation failed, returned to drafting: %v", genErr)
		return result, nil
	}
	return o.transition(ctx, lifecycle.KindDraft, draftID,
		lifecycle.DraftGenerated, false, out.Content, "record_generation")
}

func stageInputFor(row store.Row) StageInput {
	seatID, _ := row[FieldSeatID].(string)
	return StageInput{
		SessionID:     rowSessionID(lifecycle.KindParticipant, row),
		ParticipantID: row.ID(),
		SeatID:        seatID,
	}
}
