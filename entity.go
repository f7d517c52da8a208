package lifecycle

import "strings"

// EntityKind identifies one of the four lifecycle-managed entity kinds.
type EntityKind string

const (
	// KindSession is the root aggregate for one collaborative run.
	KindSession EntityKind = "session"
	// KindSeat is a claimable party slot owned by a session.
	KindSeat EntityKind = "seat"
	// KindParticipant is generated content bound to a claimed seat.
	KindParticipant EntityKind = "participant"
	// KindDraft is the pre-session content seed.
	KindDraft EntityKind = "draft"
)

// Kinds lists every entity kind in declaration order.
func Kinds() []EntityKind {
	return []EntityKind{KindSession, KindSeat, KindParticipant, KindDraft}
}

// State is a lifecycle status drawn from a closed per-kind enumeration.
type State string

// Session states.
const (
	SessionDrafting               State = "drafting"
	SessionStoryReview            State = "story_review"
	SessionFormingParty           State = "forming_party"
	SessionGeneratingParticipants State = "generating_participants"
	SessionParticipantReview      State = "participant_review"
	SessionActive                 State = "active"
	SessionPaused                 State = "paused"
	SessionCompleted              State = "completed"
	SessionAbandoned              State = "abandoned"
)

// Seat states. locked is terminal; the take-backs reserved->empty and
// ready->reserved are legal, everything else moves forward.
const (
	SeatEmpty    State = "empty"
	SeatReserved State = "reserved"
	SeatReady    State = "ready"
	SeatLocked   State = "locked"
)

// Participant states. approved is terminal; rejected->generated allows
// regeneration.
const (
	ParticipantPending   State = "pending"
	ParticipantGenerated State = "generated"
	ParticipantApproved  State = "approved"
	ParticipantRejected  State = "rejected"
)

// Draft states. approved and abandoned are terminal.
const (
	DraftDrafting   State = "drafting"
	DraftGenerating State = "generating"
	DraftGenerated  State = "generated"
	DraftApproved   State = "approved"
	DraftAbandoned  State = "abandoned"
)

// NormalizeState lowers and trims a state value for lookups.
func NormalizeState(s State) State {
	return State(strings.ToLower(strings.TrimSpace(string(s))))
}

// NormalizeKind lowers and trims an entity kind for lookups.
func NormalizeKind(k EntityKind) EntityKind {
	return EntityKind(strings.ToLower(strings.TrimSpace(string(k))))
}
