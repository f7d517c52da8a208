// Package txn layers multi-step consistency over a store that only
// guarantees per-row atomicity. Every step records its inverse before
// the next step runs; on failure the recorded inverses are applied in
// reverse order, best effort.
package txn

import (
	"context"
	stderrors "errors"
	"fmt"

	apperrors "github.com/goliatone/go-errors"
	lifecycle "github.com/goliatone/go-lifecycle"
	"github.com/goliatone/go-lifecycle/store"
)

// StepKind enumerates the mutations a transaction step can perform.
type StepKind string

const (
	StepInsert StepKind = "insert"
	StepUpdate StepKind = "update"
	StepDelete StepKind = "delete"
)

// Step is one mutation in a transaction. Update and Delete steps use
// Selector; Insert steps use Row. MinAffected turns an update into a
// precondition check: fewer affected rows fails the step with a
// precondition error instead of silently succeeding.
type Step struct {
	Name        string
	Kind        StepKind
	Collection  string
	Row         store.Row
	Patch       store.Row
	Selector    store.Selector
	MinAffected int
}

// Insert builds an insert step.
func Insert(name, collection string, row store.Row) Step {
	return Step{Name: name, Kind: StepInsert, Collection: collection, Row: row}
}

// Update builds an unconditional update step.
func Update(name, collection string, sel store.Selector, patch store.Row) Step {
	return Step{Name: name, Kind: StepUpdate, Collection: collection, Selector: sel, Patch: patch}
}

// ConditionalUpdate builds an update step that fails with a
// precondition error unless it affects at least one row.
func ConditionalUpdate(name, collection string, sel store.Selector, patch store.Row) Step {
	step := Update(name, collection, sel, patch)
	step.MinAffected = 1
	return step
}

// Delete builds a delete step.
func Delete(name, collection string, sel store.Selector) Step {
	return Step{Name: name, Kind: StepDelete, Collection: collection, Selector: sel}
}

// StepResult captures the forward outcome of one executed step.
type StepResult struct {
	Name       string
	Kind       StepKind
	Collection string
	// InsertedID is set for insert steps.
	InsertedID string
	// Affected is set for update steps.
	Affected int
	// Captured holds the rows a delete step removed.
	Captured []store.Row
}

// Outcome is the result of a committed transaction.
type Outcome struct {
	Steps []StepResult
}

// InsertedID returns the id produced by the named insert step, or "".
func (o Outcome) InsertedID(name string) string {
	for _, step := range o.Steps {
		if step.Name == name {
			return step.InsertedID
		}
	}
	return ""
}

// undoFn reverses one committed step.
type undoFn struct {
	name  string
	apply func(context.Context) error
}

// Executor runs step lists against a store with compensation on
// failure.
type Executor struct {
	store  store.Store
	logger lifecycle.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger lifecycle.Logger) Option {
	return func(e *Executor) {
		e.logger = lifecycle.NormalizeLogger(logger)
	}
}

// NewExecutor builds an executor over the given store.
func NewExecutor(s store.Store, opts ...Option) *Executor {
	e := &Executor{
		store:  s,
		logger: lifecycle.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the steps in order. When a step fails, every step
// already committed is reversed in LIFO order and the step failure is
// returned wrapped as a transaction error. Compensation is best
// effort: an inverse that itself fails does not halt the remaining
// inverses, and the first compensation failure is attached to the
// returned error's metadata.
func (e *Executor) Execute(ctx context.Context, steps []Step) (Outcome, error) {
	outcome := Outcome{Steps: make([]StepResult, 0, len(steps))}
	undo := make([]undoFn, 0, len(steps))

	for i, step := range steps {
		result, inverse, err := e.runStep(ctx, step)
		if err != nil {
			rollbackErr := e.rollback(ctx, undo)
			return Outcome{}, e.failure(step, i, err, len(undo) > 0, rollbackErr)
		}
		outcome.Steps = append(outcome.Steps, result)
		if inverse.apply != nil {
			undo = append(undo, inverse)
		}
	}
	return outcome, nil
}

func (e *Executor) runStep(ctx context.Context, step Step) (StepResult, undoFn, error) {
	result := StepResult{Name: step.Name, Kind: step.Kind, Collection: step.Collection}

	switch step.Kind {
	case StepInsert:
		id, err := e.store.Insert(ctx, step.Collection, step.Row)
		if err != nil {
			return result, undoFn{}, err
		}
		result.InsertedID = id
		inverse := undoFn{name: step.Name, apply: func(ctx context.Context) error {
			_, err := e.store.Delete(ctx, step.Collection, store.ByID(id))
			return err
		}}
		return result, inverse, nil

	case StepUpdate:
		// capture pre-images before mutating so the inverse can restore them
		before, err := e.store.Query(ctx, step.Collection, step.Selector)
		if err != nil {
			return result, undoFn{}, err
		}
		affected, err := e.store.Update(ctx, step.Collection, step.Selector, step.Patch)
		if err != nil {
			return result, undoFn{}, err
		}
		result.Affected = affected
		if step.MinAffected > 0 && affected < step.MinAffected {
			return result, undoFn{}, lifecycle.CloneError(lifecycle.ErrPreconditionFailed,
				fmt.Sprintf("step %s matched %d row(s), need %d", step.Name, affected, step.MinAffected),
				nil,
				map[string]any{
					"collection": step.Collection,
					"selector":   step.Selector.String(),
					"affected":   affected,
				})
		}
		// an update patch merges onto the row, so restoring by update
		// would keep fields the patch added; swap the whole row back
		inverse := undoFn{name: step.Name, apply: func(ctx context.Context) error {
			var firstErr error
			for _, row := range before {
				if _, err := e.store.Delete(ctx, step.Collection, store.ByID(row.ID())); err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if _, err := e.store.Insert(ctx, step.Collection, row); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}}
		return result, inverse, nil

	case StepDelete:
		removed, err := e.store.Delete(ctx, step.Collection, step.Selector)
		if err != nil {
			return result, undoFn{}, err
		}
		result.Captured = removed
		inverse := undoFn{name: step.Name, apply: func(ctx context.Context) error {
			var firstErr error
			for _, row := range removed {
				if _, err := e.store.Insert(ctx, step.Collection, row); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}}
		return result, inverse, nil
	}

	return result, undoFn{}, fmt.Errorf("unknown step kind %q", step.Kind)
}

// rollback applies the recorded inverses newest first. The first
// inverse failure is returned after every inverse has been attempted.
func (e *Executor) rollback(ctx context.Context, undo []undoFn) error {
	var firstErr error
	for i := len(undo) - 1; i >= 0; i-- {
		log := lifecycle.WithLoggerFields(e.logger, map[string]any{"step": undo[i].name})
		if err := undo[i].apply(ctx); err != nil {
			log.Error("compensation step failed: %v", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("compensate %s: %w", undo[i].name, err)
			}
			continue
		}
		log.Debug("compensated step")
	}
	return firstErr
}

func (e *Executor) failure(step Step, index int, cause error, attempted bool, rollbackErr error) error {
	// validation outcomes keep their own taxonomy code so callers can
	// branch on them; only the metadata records the transaction context
	metadata := map[string]any{
		"step_index":         index,
		"step_name":          step.Name,
		"rollback_attempted": attempted,
		"rollback_complete":  attempted && rollbackErr == nil,
	}
	if rollbackErr != nil {
		metadata["compensation_error"] = rollbackErr.Error()
	}

	if lifecycle.IsValidation(cause) || lifecycle.IsTransient(cause) {
		var ge *apperrors.Error
		if stderrors.As(cause, &ge) {
			for k, v := range ge.Metadata {
				metadata[k] = v
			}
			return ge.WithMetadata(metadata)
		}
	}
	return lifecycle.CloneError(lifecycle.ErrTransactionFailed,
		fmt.Sprintf("transaction failed at step %s", step.Name),
		cause,
		metadata)
}
