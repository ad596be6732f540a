package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessage})
	b.Publish(Event{Kind: KindPresenceUpdated})

	select {
	case evt := <-ch:
		if evt.Kind != KindPresenceUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, KindPresenceUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the chat event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("home.", 10)
	unsub()

	b.Publish(Event{Kind: KindRequestAccepted})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: KindMessage, Payload: 1})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: KindMessage, Payload: 2})

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got payload %v, want 1", evt.Payload)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestUnsubscribeTwiceKeepsOthers(t *testing.T) {
	b := New()
	_, unsubA := b.Subscribe("chat.", 1)
	chB, unsubB := b.Subscribe("chat.", 1)
	defer unsubB()

	unsubA()
	unsubA()
	b.Publish(Event{Kind: KindMessage})

	select {
	case <-chB:
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber lost its event")
	}
	if got := b.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
}

func TestExactKindSubscription(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(KindRequestAccepted, 4)
	defer unsub()

	b.Publish(Event{Kind: KindNearbyUpdated})
	b.Publish(Event{Kind: KindRequestAccepted})

	select {
	case evt := <-ch:
		if evt.Kind != KindRequestAccepted {
			t.Errorf("got %q, want %q", evt.Kind, KindRequestAccepted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for accept event")
	}
}

func TestEmptyNamespaceReceivesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessage})
	b.Publish(Event{Kind: KindRequestAccepted})

	for _, want := range []string{KindMessage, KindRequestAccepted} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindMessage})
	if b.Dropped() != 0 {
		t.Error("nil bus reported drops")
	}
}
