package lifecycle

import (
	"testing"
)

func TestDefaultRegistryTerminalStates(t *testing.T) {
	reg := DefaultRegistry()

	cases := []struct {
		kind  EntityKind
		state State
	}{
		{KindSession, SessionCompleted},
		{KindSession, SessionAbandoned},
		{KindSeat, SeatLocked},
		{KindParticipant, ParticipantApproved},
		{KindDraft, DraftApproved},
		{KindDraft, DraftAbandoned},
	}
	for _, tc := range cases {
		if !reg.Terminal(tc.kind, tc.state) {
			t.Fatalf("expected %s/%s to be terminal", tc.kind, tc.state)
		}
		if targets := reg.AllowedTargets(tc.kind, tc.state); len(targets) != 0 {
			t.Fatalf("terminal %s/%s has targets %v", tc.kind, tc.state, targets)
		}
	}
}

func TestDefaultRegistryNonTerminalHaveTargets(t *testing.T) {
	reg := DefaultRegistry()
	for _, kind := range Kinds() {
		for _, state := range reg.States(kind) {
			if reg.Terminal(kind, state) {
				continue
			}
			if len(reg.AllowedTargets(kind, state)) == 0 {
				t.Fatalf("non-terminal %s/%s has empty adjacency", kind, state)
			}
		}
	}
}

func TestRegistryAllows(t *testing.T) {
	reg := DefaultRegistry()

	if !reg.Allows(KindSeat, SeatEmpty, SeatReserved) {
		t.Fatal("expected empty->reserved to be legal")
	}
	if !reg.Allows(KindSeat, SeatReady, SeatReserved) {
		t.Fatal("expected ready->reserved take-back to be legal")
	}
	if reg.Allows(KindSeat, SeatEmpty, SeatLocked) {
		t.Fatal("expected empty->locked to be illegal")
	}
	if reg.Allows(KindSession, SessionCompleted, SessionActive) {
		t.Fatal("expected completed->active to be illegal")
	}
	if !reg.Allows(KindParticipant, ParticipantRejected, ParticipantGenerated) {
		t.Fatal("expected rejected->generated regeneration to be legal")
	}
}

func TestNewRegistryRejectsUnknownTarget(t *testing.T) {
	_, err := NewRegistry(map[EntityKind]Table{
		KindSeat: {
			SeatEmpty:  {State("nowhere")},
			SeatLocked: {},
		},
	})
	if err == nil {
		t.Fatal("expected unknown target to be rejected")
	}
	if code := ErrorCode(err); code != "LIFECYCLE_BAD_REGISTRY" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestNewRegistryRequiresTerminalState(t *testing.T) {
	_, err := NewRegistry(map[EntityKind]Table{
		KindSeat: {
			SeatEmpty:    {SeatReserved},
			SeatReserved: {SeatEmpty},
		},
	})
	if err == nil {
		t.Fatal("expected registry without terminal state to be rejected")
	}
}

func TestParseRegistryYAML(t *testing.T) {
	data := []byte(`
entities:
  seat:
    empty: [reserved]
    reserved: [ready, empty]
    ready: [locked, reserved]
    locked: []
`)
	reg, err := ParseRegistry(data)
	if err != nil {
		t.Fatalf("parse registry: %v", err)
	}
	if !reg.Allows(KindSeat, SeatReserved, SeatReady) {
		t.Fatal("expected parsed reserved->ready edge")
	}
	if !reg.Terminal(KindSeat, SeatLocked) {
		t.Fatal("expected parsed locked to be terminal")
	}
	if reg.HasKind(KindSession) {
		t.Fatal("parsed registry should only know seat")
	}
}

func TestRegistryNormalizesLookups(t *testing.T) {
	reg := DefaultRegistry()
	if !reg.Allows(EntityKind(" Seat "), State(" EMPTY "), State("Reserved")) {
		t.Fatal("expected normalized lookup to succeed")
	}
}
