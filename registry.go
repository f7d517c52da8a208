package lifecycle

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Table maps each state of one entity kind to its legal target states.
// A state with an empty adjacency list is terminal.
type Table map[State][]State

// Registry holds the transition tables for every entity kind. It is
// immutable after construction and is the single source of truth for
// transition legality; no other component may special-case an edge.
type Registry struct {
	tables map[EntityKind]Table
}

// NewRegistry builds a registry from per-kind tables. The input is
// cloned and validated: every transition target must itself be a state
// listed in the table, and each kind must have at least one terminal
// state.
func NewRegistry(tables map[EntityKind]Table) (*Registry, error) {
	if len(tables) == 0 {
		return nil, errors.New("transition tables are required", errors.CategoryBadInput).
			WithTextCode("LIFECYCLE_EMPTY_REGISTRY")
	}
	cloned := make(map[EntityKind]Table, len(tables))
	for kind, table := range tables {
		kind = NormalizeKind(kind)
		if kind == "" {
			return nil, errors.New("entity kind name is required", errors.CategoryBadInput).
				WithTextCode("LIFECYCLE_BAD_REGISTRY")
		}
		cloned[kind] = cloneTable(table)
	}
	r := &Registry{tables: cloned}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on invalid tables. Intended
// for package-level defaults built from literals.
func MustRegistry(tables map[EntityKind]Table) *Registry {
	r, err := NewRegistry(tables)
	if err != nil {
		panic(err)
	}
	return r
}

// AllowedTargets returns the adjacency list for (kind, from), sorted
// for stable output. Terminal and unknown states return an empty slice.
func (r *Registry) AllowedTargets(kind EntityKind, from State) []State {
	if r == nil {
		return nil
	}
	table, ok := r.tables[NormalizeKind(kind)]
	if !ok {
		return nil
	}
	targets := table[NormalizeState(from)]
	out := make([]State, len(targets))
	copy(out, targets)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Allows reports whether the edge (from -> to) exists for kind. There
// is no default or fallthrough path: absent means illegal.
func (r *Registry) Allows(kind EntityKind, from, to State) bool {
	to = NormalizeState(to)
	for _, target := range r.AllowedTargets(kind, from) {
		if target == to {
			return true
		}
	}
	return false
}

// Terminal reports whether state is known for kind and has no outgoing
// edges.
func (r *Registry) Terminal(kind EntityKind, state State) bool {
	if r == nil {
		return false
	}
	table, ok := r.tables[NormalizeKind(kind)]
	if !ok {
		return false
	}
	targets, known := table[NormalizeState(state)]
	return known && len(targets) == 0
}

// States returns every state known for kind, sorted.
func (r *Registry) States(kind EntityKind) []State {
	if r == nil {
		return nil
	}
	table, ok := r.tables[NormalizeKind(kind)]
	if !ok {
		return nil
	}
	out := make([]State, 0, len(table))
	for state := range table {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Kinds returns every entity kind the registry carries a table for, in
// map order.
func (r *Registry) Kinds() []EntityKind {
	if r == nil {
		return nil
	}
	out := make([]EntityKind, 0, len(r.tables))
	for kind := range r.tables {
		out = append(out, kind)
	}
	return out
}

// HasKind reports whether the registry carries a table for kind.
func (r *Registry) HasKind(kind EntityKind) bool {
	if r == nil {
		return false
	}
	_, ok := r.tables[NormalizeKind(kind)]
	return ok
}

func (r *Registry) validate() error {
	for kind, table := range r.tables {
		if len(table) == 0 {
			return errors.New(fmt.Sprintf("entity %s has no states", kind), errors.CategoryBadInput).
				WithTextCode("LIFECYCLE_BAD_REGISTRY")
		}
		terminal := false
		for state, targets := range table {
			if len(targets) == 0 {
				terminal = true
			}
			for _, target := range targets {
				if _, known := table[target]; !known {
					return errors.New("transition targets unknown state", errors.CategoryBadInput).
						WithTextCode("LIFECYCLE_BAD_REGISTRY").
						WithMetadata(map[string]any{
							"entity_kind": string(kind),
							"from":        string(state),
							"to":          string(target),
						})
				}
			}
		}
		if !terminal {
			return errors.New(fmt.Sprintf("entity %s has no terminal state", kind), errors.CategoryBadInput).
				WithTextCode("LIFECYCLE_BAD_REGISTRY")
		}
	}
	return nil
}

func cloneTable(table Table) Table {
	out := make(Table, len(table))
	for state, targets := range table {
		cloned := make([]State, 0, len(targets))
		for _, target := range targets {
			cloned = append(cloned, NormalizeState(target))
		}
		out[NormalizeState(state)] = cloned
	}
	return out
}

// DefaultRegistry returns the stock transition tables for the four
// entity kinds.
func DefaultRegistry() *Registry {
	return MustRegistry(map[EntityKind]Table{
		KindSession: {
			SessionDrafting:               {SessionStoryReview, SessionAbandoned},
			SessionStoryReview:            {SessionDrafting, SessionFormingParty, SessionAbandoned},
			SessionFormingParty:           {SessionGeneratingParticipants, SessionAbandoned},
			SessionGeneratingParticipants: {SessionParticipantReview, SessionAbandoned},
			SessionParticipantReview:      {SessionGeneratingParticipants, SessionActive, SessionAbandoned},
			SessionActive:                 {SessionPaused, SessionCompleted, SessionAbandoned},
			SessionPaused:                 {SessionActive, SessionCompleted, SessionAbandoned},
			SessionCompleted:              {},
			SessionAbandoned:              {},
		},
		KindSeat: {
			SeatEmpty:    {SeatReserved},
			SeatReserved: {SeatReady, SeatEmpty},
			SeatReady:    {SeatLocked, SeatReserved},
			SeatLocked:   {},
		},
		KindParticipant: {
			ParticipantPending:   {ParticipantGenerated},
			ParticipantGenerated: {ParticipantApproved, ParticipantRejected},
			ParticipantApproved:  {},
			ParticipantRejected:  {ParticipantGenerated},
		},
		KindDraft: {
			DraftDrafting:   {DraftGenerating, DraftAbandoned},
			DraftGenerating: {DraftGenerated, DraftDrafting},
			DraftGenerated:  {DraftApproved, DraftDrafting, DraftAbandoned},
			DraftApproved:   {},
			DraftAbandoned:  {},
		},
	})
}

type registryConfig struct {
	Entities map[string]map[string][]string `yaml:"entities" json:"entities"`
}

// ParseRegistry loads transition tables from YAML (yaml handles JSON
// too). Shape:
//
//	entities:
//	  seat:
//	    empty: [reserved]
//	    reserved: [ready, empty]
//	    ready: [locked, reserved]
//	    locked: []
func ParseRegistry(data []byte) (*Registry, error) {
	var cfg registryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "parse registry config").
			WithTextCode("LIFECYCLE_BAD_REGISTRY")
	}
	tables := make(map[EntityKind]Table, len(cfg.Entities))
	for kind, states := range cfg.Entities {
		table := make(Table, len(states))
		for state, targets := range states {
			out := make([]State, 0, len(targets))
			for _, target := range targets {
				out = append(out, State(target))
			}
			table[State(state)] = out
		}
		tables[EntityKind(kind)] = table
	}
	return NewRegistry(tables)
}
