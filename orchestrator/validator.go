package orchestrator

import (
	"context"

	lifecycle "github.com/goliatone/go-lifecycle"
)

// Validator decides transition legality: registry first, requirements
// second. A registry rejection always wins, so an illegal edge with
// unmet requirements reports invalid-transition, not requirements.
type Validator struct {
	registry     *lifecycle.Registry
	requirements lifecycle.Requirements
	evaluator    *Evaluator
}

// NewValidator builds a validator over the registry and requirement
// tables.
func NewValidator(registry *lifecycle.Registry, requirements lifecycle.Requirements, evaluator *Evaluator) *Validator {
	return &Validator{
		registry:     registry,
		requirements: requirements,
		evaluator:    evaluator,
	}
}

// Validate checks the edge (from -> to) for kind and, when the target
// is gated, evaluates its requirements against fresh store state.
// Bypass skips the requirement phase only; registry legality is never
// bypassed.
func (v *Validator) Validate(ctx context.Context, kind lifecycle.EntityKind, sessionID string, from, to lifecycle.State, bypass bool) error {
	from = lifecycle.NormalizeState(from)
	to = lifecycle.NormalizeState(to)

	if !v.registry.Allows(kind, from, to) {
		return lifecycle.NewInvalidTransition(kind, from, to, v.registry.AllowedTargets(kind, from))
	}

	if bypass {
		return nil
	}
	req := v.requirements.Lookup(kind, to)
	if req.Empty() {
		return nil
	}

	result, err := v.evaluator.Evaluate(ctx, sessionID, req)
	if err != nil {
		return err
	}
	if !result.Valid {
		return lifecycle.NewRequirementsNotMet(result.UnmetReasons)
	}
	return nil
}
