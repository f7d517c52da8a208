package lifecycle

import (
	"fmt"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Requirement declares the facts that must hold before an entity may
// enter a target state. Zero-valued fields are inapplicable and skipped
// during evaluation, never defaulted to failure.
type Requirement struct {
	// MinReadySeats is the minimum count of seats in ready or locked.
	MinReadySeats int `yaml:"min_ready_seats" json:"min_ready_seats"`
	// ApprovedDraft requires a draft in the approved state.
	ApprovedDraft bool `yaml:"approved_draft" json:"approved_draft"`
	// ApprovedParticipant requires at least one approved participant.
	ApprovedParticipant bool `yaml:"approved_participant" json:"approved_participant"`
}

// Empty reports whether no requirement applies.
func (r Requirement) Empty() bool {
	return r.MinReadySeats <= 0 && !r.ApprovedDraft && !r.ApprovedParticipant
}

// Requirements maps (kind, target state) to the requirement gating that
// transition. Like the transition registry it is injected data.
type Requirements map[EntityKind]map[State]Requirement

// Gated reports whether entering target requires evaluation for kind.
func (r Requirements) Gated(kind EntityKind, target State) bool {
	return !r.Lookup(kind, target).Empty()
}

// Lookup returns the requirement for (kind, target), zero when none.
func (r Requirements) Lookup(kind EntityKind, target State) Requirement {
	states, ok := r[NormalizeKind(kind)]
	if !ok {
		return Requirement{}
	}
	return states[NormalizeState(target)]
}

// Result is the outcome of evaluating a requirement against fresh
// store facts.
type Result struct {
	Valid        bool
	UnmetReasons []string
}

// ReasonMinReadySeats renders the unmet-reason line for a seat-count
// shortfall.
func ReasonMinReadySeats(min int) string {
	return fmt.Sprintf("Requires at least %d ready participant(s)", min)
}

// Unmet-reason lines for the boolean requirements.
const (
	ReasonApprovedDraft       = "Requires an approved draft"
	ReasonApprovedParticipant = "Requires at least one approved participant"
)

// DefaultRequirements gates the two irreversible session advances:
// forming the generation roster needs a claimed-and-ready party, and
// going active additionally needs approved content.
func DefaultRequirements() Requirements {
	return Requirements{
		KindSession: {
			SessionGeneratingParticipants: {MinReadySeats: 1},
			SessionActive: {
				MinReadySeats:       1,
				ApprovedDraft:       true,
				ApprovedParticipant: true,
			},
		},
	}
}

type requirementsConfig struct {
	Requirements map[string]map[string]Requirement `yaml:"requirements" json:"requirements"`
}

// ParseRequirements loads a requirements table from YAML. Shape:
//
//	requirements:
//	  session:
//	    active:
//	      min_ready_seats: 1
//	      approved_draft: true
//	      approved_participant: true
func ParseRequirements(data []byte) (Requirements, error) {
	var cfg requirementsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "parse requirements config").
			WithTextCode("LIFECYCLE_BAD_REQUIREMENTS")
	}
	out := make(Requirements, len(cfg.Requirements))
	for kind, states := range cfg.Requirements {
		table := make(map[State]Requirement, len(states))
		for state, req := range states {
			table[NormalizeState(State(state))] = req
		}
		out[NormalizeKind(EntityKind(kind))] = table
	}
	return out, nil
}
