// Package orchestrator is the façade through which callers move
// sessions, seats, participants, and drafts through their lifecycles.
// Every mutation is validated against the transition registry, gated by
// requirement evaluation, executed with compensation, and retried on
// transient store failures before a committed event is broadcast.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	lifecycle "github.com/goliatone/go-lifecycle"
	"github.com/goliatone/go-lifecycle/idempotency"
	"github.com/goliatone/go-lifecycle/notify"
	"github.com/goliatone/go-lifecycle/runner"
	"github.com/goliatone/go-lifecycle/store"
	"github.com/goliatone/go-lifecycle/txn"
)

// Orchestrator coordinates lifecycle operations over a store.
type Orchestrator struct {
	store        store.Store
	registry     *lifecycle.Registry
	requirements lifecycle.Requirements
	collections  Collections
	evaluator    *Evaluator
	validator    *Validator
	executor     *txn.Executor
	retry        *runner.Retry
	locks        *idempotency.Cache[LockPartyResult]
	publisher    notify.Publisher
	logger       lifecycle.Logger
}

type Option func(*Orchestrator)

// WithRegistry replaces the default transition tables.
func WithRegistry(r *lifecycle.Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithRequirements replaces the default requirement tables.
func WithRequirements(r lifecycle.Requirements) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.requirements = r
		}
	}
}

// WithCollections overrides the backing collection names.
func WithCollections(c Collections) Option {
	return func(o *Orchestrator) {
		o.collections = c
	}
}

// WithRetry replaces the default retry budget.
func WithRetry(r *runner.Retry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.retry = r
		}
	}
}

// WithPublisher wires committed-event broadcasting.
func WithPublisher(p notify.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithIdempotencyTTL sets the replay window for idempotency-keyed
// operations.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.locks = idempotency.New(idempotency.WithTTL[LockPartyResult](ttl))
		}
	}
}

func WithLogger(l lifecycle.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = lifecycle.NormalizeLogger(l)
	}
}

// New constructs an orchestrator over the given store, applying the
// default registry, requirements, retry budget, and collection names
// unless overridden.
func New(s store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        s,
		registry:     lifecycle.DefaultRegistry(),
		requirements: lifecycle.DefaultRequirements(),
		collections:  DefaultCollections(),
		retry:        runner.New(),
		locks:        idempotency.New[LockPartyResult](),
		publisher:    notify.Discard{},
		logger:       lifecycle.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.evaluator = NewEvaluator(o.store, o.collections)
	o.validator = NewValidator(o.registry, o.requirements, o.evaluator)
	o.executor = txn.NewExecutor(o.store, txn.WithLogger(o.logger))
	return o
}

// CallOption adjusts a single orchestrator call.
type CallOption func(*callSettings)

type callSettings struct {
	bypassRequirements bool
}

// WithBypassRequirements skips requirement evaluation for one call.
// Registry legality still applies; there is no bypass for that.
func WithBypassRequirements() CallOption {
	return func(s *callSettings) {
		s.bypassRequirements = true
	}
}

func applyCallOptions(opts []CallOption) callSettings {
	var s callSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// TransitionResult reports one committed state change.
type TransitionResult struct {
	Kind      lifecycle.EntityKind
	EntityID  string
	SessionID string
	From      lifecycle.State
	To        lifecycle.State
}

// TransitionSession moves a session to the target state.
func (o *Orchestrator) TransitionSession(ctx context.Context, sessionID string, to lifecycle.State, opts ...CallOption) (TransitionResult, error) {
	settings := applyCallOptions(opts)
	return o.transition(ctx, lifecycle.KindSession, sessionID, to, settings.bypassRequirements, nil, "transition_session")
}

// TransitionDraft moves a draft to the target state.
func (o *Orchestrator) TransitionDraft(ctx context.Context, draftID string, to lifecycle.State, opts ...CallOption) (TransitionResult, error) {
	settings := applyCallOptions(opts)
	return o.transition(ctx, lifecycle.KindDraft, draftID, to, settings.bypassRequirements, nil, "transition_draft")
}

// AllowedTargets returns the legal target states for the entity's
// current persisted state, sorted.
func (o *Orchestrator) AllowedTargets(ctx context.Context, kind lifecycle.EntityKind, entityID string) ([]lifecycle.State, error) {
	row, err := o.loadEntity(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}
	return o.registry.AllowedTargets(kind, rowState(row)), nil
}

// transition is the single-row mutation path shared by session, draft,
// and participant moves. The status write is conditioned on the state
// the validation saw, so a concurrent transition makes this one fail
// its precondition instead of committing a stale edge.
func (o *Orchestrator) transition(ctx context.Context, kind lifecycle.EntityKind, entityID string, to lifecycle.State, bypass bool, patch store.Row, operation string) (TransitionResult, error) {
	to = lifecycle.NormalizeState(to)

	result, err := runner.Query(ctx, o.retry, func(ctx context.Context) (TransitionResult, error) {
		row, err := o.loadEntity(ctx, kind, entityID)
		if err != nil {
			return TransitionResult{}, err
		}
		from := rowState(row)
		sessionID := rowSessionID(kind, row)

		if err := o.validator.Validate(ctx, kind, sessionID, from, to, bypass); err != nil {
			return TransitionResult{}, err
		}

		full := store.Row{FieldStatus: string(to)}.Merge(patch)
		full[FieldStatus] = string(to)
		affected, err := o.store.Update(ctx, o.collections.For(kind),
			store.ByID(entityID).And(FieldStatus, string(from)), full)
		if err != nil {
			return TransitionResult{}, err
		}
		if affected == 0 {
			return TransitionResult{}, lifecycle.CloneError(lifecycle.ErrPreconditionFailed,
				fmt.Sprintf("%s %s changed state during %s", kind, entityID, operation),
				nil,
				map[string]any{
					"entity_kind": string(kind),
					"entity_id":   entityID,
					"expected":    string(from),
				})
		}

		return TransitionResult{
			Kind:      kind,
			EntityID:  entityID,
			SessionID: sessionID,
			From:      from,
			To:        to,
		}, nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	o.publish(ctx, result, operation, nil)
	return result, nil
}

// loadEntity fetches the entity row or reports not-found.
func (o *Orchestrator) loadEntity(ctx context.Context, kind lifecycle.EntityKind, entityID string) (store.Row, error) {
	rows, err := o.store.Query(ctx, o.collections.For(kind), store.ByID(entityID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, lifecycle.CloneError(lifecycle.ErrNotFound,
			fmt.Sprintf("%s %s not found", kind, entityID),
			nil,
			map[string]any{"entity_kind": string(kind), "entity_id": entityID})
	}
	return rows[0], nil
}

// publish broadcasts a committed transition. Broadcast failures are
// logged and swallowed; the transition already happened.
func (o *Orchestrator) publish(ctx context.Context, result TransitionResult, operation string, metadata map[string]any) {
	evt := notify.TransitionEvent{
		Kind:       result.Kind,
		EntityID:   result.EntityID,
		SessionID:  result.SessionID,
		From:       result.From,
		To:         result.To,
		Operation:  operation,
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	}
	if err := o.publisher.Publish(ctx, evt); err != nil {
		lifecycle.WithLoggerFields(o.logger, map[string]any{
			"operation": operation,
			"entity_id": result.EntityID,
		}).Warn("transition event delivery failed: %v", err)
	}
}

func rowState(row store.Row) lifecycle.State {
	status, _ := row[FieldStatus].(string)
	return lifecycle.NormalizeState(lifecycle.State(status))
}

func rowSessionID(kind lifecycle.EntityKind, row store.Row) string {
	if lifecycle.NormalizeKind(kind) == lifecycle.KindSession {
		return row.ID()
	}
	id, _ := row[FieldSessionID].(string)
	return id
}
