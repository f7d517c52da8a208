// Package notify broadcasts committed transition events to in-process
// subscribers. Delivery is synchronous and after the fact: a handler
// only ever observes transitions that were persisted, and a handler
// failure never unwinds the transition that triggered it.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	lifecycle "github.com/goliatone/go-lifecycle"
)

// Topic names, one per entity kind.
const (
	TopicSession     = "lifecycle.session"
	TopicSeat        = "lifecycle.seat"
	TopicParticipant = "lifecycle.participant"
	TopicDraft       = "lifecycle.draft"
)

// TopicFor maps an entity kind to its topic.
func TopicFor(kind lifecycle.EntityKind) string {
	switch lifecycle.NormalizeKind(kind) {
	case lifecycle.KindSeat:
		return TopicSeat
	case lifecycle.KindParticipant:
		return TopicParticipant
	case lifecycle.KindDraft:
		return TopicDraft
	default:
		return TopicSession
	}
}

// TransitionEvent describes one committed state change.
type TransitionEvent struct {
	Kind       lifecycle.EntityKind `json:"kind"`
	EntityID   string               `json:"entity_id"`
	SessionID  string               `json:"session_id,omitempty"`
	From       lifecycle.State      `json:"from"`
	To         lifecycle.State      `json:"to"`
	Operation  string               `json:"operation,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
	Metadata   map[string]any       `json:"metadata,omitempty"`
}

// Topic returns the event's topic.
func (e TransitionEvent) Topic() string {
	return TopicFor(e.Kind)
}

// Handler consumes one committed event.
type Handler func(ctx context.Context, evt TransitionEvent) error

// Publisher is the outbound side consumed by the orchestrator.
type Publisher interface {
	Publish(ctx context.Context, evt TransitionEvent) error
}

// Subscription detaches a handler from its topic.
type Subscription interface {
	Unsubscribe()
}

// Broadcaster fans committed events out to topic subscribers.
type Broadcaster struct {
	mu       sync.RWMutex
	handlers map[string][]*registration
	logger   lifecycle.Logger
}

type registration struct {
	handler Handler
}

type Option func(*Broadcaster)

func WithLogger(l lifecycle.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = lifecycle.NormalizeLogger(l)
	}
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		handlers: make(map[string][]*registration),
		logger:   lifecycle.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe attaches a handler to a topic.
func (b *Broadcaster) Subscribe(topic string, handler Handler) Subscription {
	reg := &registration{handler: handler}
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], reg)
	b.mu.Unlock()
	return &subs{broadcaster: b, topic: topic, reg: reg}
}

// SubscribeKind attaches a handler to an entity kind's topic.
func (b *Broadcaster) SubscribeKind(kind lifecycle.EntityKind, handler Handler) Subscription {
	return b.Subscribe(TopicFor(kind), handler)
}

// Publish delivers evt to every subscriber of its topic, in
// subscription order. Handler errors are joined and returned for the
// caller to log; publication itself is not rolled back.
func (b *Broadcaster) Publish(ctx context.Context, evt TransitionEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	regs := append([]*registration(nil), b.handlers[evt.Topic()]...)
	b.mu.RUnlock()

	var errs error
	for _, reg := range regs {
		if err := reg.handler(ctx, evt); err != nil {
			lifecycle.WithLoggerFields(b.logger, map[string]any{
				"topic":     evt.Topic(),
				"entity_id": evt.EntityID,
			}).Error("transition handler failed: %v", err)
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

type subs struct {
	broadcaster *Broadcaster
	topic       string
	reg         *registration
}

func (s *subs) Unsubscribe() {
	b := s.broadcaster
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[s.topic]
	kept := make([]*registration, 0, len(regs))
	for _, reg := range regs {
		if reg != s.reg {
			kept = append(kept, reg)
		}
	}
	b.handlers[s.topic] = kept
}

// Discard swallows every event. It is the publisher used when
// notifications are not wired.
type Discard struct{}

func (Discard) Publish(context.Context, TransitionEvent) error { return nil }
