package notify

import (
	"context"
	"fmt"
	"testing"

	lifecycle "github.com/goliatone/go-lifecycle"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBroadcaster()

	var order []string
	b.SubscribeKind(lifecycle.KindSession, func(_ context.Context, evt TransitionEvent) error {
		order = append(order, "first:"+string(evt.To))
		return nil
	})
	b.SubscribeKind(lifecycle.KindSession, func(_ context.Context, evt TransitionEvent) error {
		order = append(order, "second:"+string(evt.To))
		return nil
	})

	err := b.Publish(context.Background(), TransitionEvent{
		Kind:     lifecycle.KindSession,
		EntityID: "sess-1",
		From:     lifecycle.SessionActive,
		To:       lifecycle.SessionPaused,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(order) != 2 || order[0] != "first:paused" || order[1] != "second:paused" {
		t.Fatalf("unexpected delivery order %v", order)
	}
}

func TestPublishRoutesByTopic(t *testing.T) {
	b := NewBroadcaster()

	seatEvents := 0
	sessionEvents := 0
	b.SubscribeKind(lifecycle.KindSeat, func(context.Context, TransitionEvent) error {
		seatEvents++
		return nil
	})
	b.SubscribeKind(lifecycle.KindSession, func(context.Context, TransitionEvent) error {
		sessionEvents++
		return nil
	})

	b.Publish(context.Background(), TransitionEvent{Kind: lifecycle.KindSeat, EntityID: "seat-1"})
	if seatEvents != 1 || sessionEvents != 0 {
		t.Fatalf("event leaked across topics: seat=%d session=%d", seatEvents, sessionEvents)
	}
}

func TestPublishContinuesPastHandlerFailure(t *testing.T) {
	b := NewBroadcaster()

	delivered := false
	b.SubscribeKind(lifecycle.KindDraft, func(context.Context, TransitionEvent) error {
		return fmt.Errorf("handler down")
	})
	b.SubscribeKind(lifecycle.KindDraft, func(context.Context, TransitionEvent) error {
		delivered = true
		return nil
	})

	err := b.Publish(context.Background(), TransitionEvent{Kind: lifecycle.KindDraft, EntityID: "d-1"})
	if err == nil {
		t.Fatal("expected joined handler error")
	}
	if !delivered {
		t.Fatal("later handler must still receive the event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()

	events := 0
	sub := b.SubscribeKind(lifecycle.KindParticipant, func(context.Context, TransitionEvent) error {
		events++
		return nil
	})

	evt := TransitionEvent{Kind: lifecycle.KindParticipant, EntityID: "p-1"}
	b.Publish(context.Background(), evt)
	sub.Unsubscribe()
	b.Publish(context.Background(), evt)

	if events != 1 {
		t.Fatalf("expected one delivery, got %d", events)
	}
}

func TestTopicFor(t *testing.T) {
	if TopicFor(lifecycle.KindSeat) != TopicSeat {
		t.Fatal("seat topic mismatch")
	}
	if TopicFor(lifecycle.EntityKind(" SESSION ")) != TopicSession {
		t.Fatal("kind must be normalized before routing")
	}
}
