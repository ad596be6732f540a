package presence

import (
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/helpline/internal/bus"
)

func TestReplaceIsWholesale(t *testing.T) {
	tr := NewTracker("u1_u2", nil)

	tr.Replace([]string{"u2", "u3"})
	if !tr.IsOnline("u2") || !tr.IsOnline("u3") {
		t.Fatalf("online = %v, want u2 and u3", tr.Online())
	}

	tr.Replace([]string{"u3"})
	if tr.IsOnline("u2") {
		t.Error("u2 should be offline after snapshot without it")
	}
	if !tr.IsOnline("u3") {
		t.Error("u3 should still be online")
	}
	if got := tr.Online(); !slices.Equal(got, []string{"u3"}) {
		t.Errorf("Online() = %v, want [u3]", got)
	}
}

func TestEmptySnapshotClearsSet(t *testing.T) {
	tr := NewTracker("u1_u2", nil)
	tr.Replace([]string{"u1", "u2"})
	tr.Replace(nil)
	if n := len(tr.Online()); n != 0 {
		t.Errorf("len(Online()) = %d, want 0", n)
	}
}

func TestMarkStaleKeepsSet(t *testing.T) {
	tr := NewTracker("u1_u2", nil)
	tr.Replace([]string{"u2"})
	tr.MarkStale()

	if !tr.Stale() {
		t.Error("Stale() = false after MarkStale")
	}
	if !tr.IsOnline("u2") {
		t.Error("MarkStale must not clear the set")
	}

	tr.Replace([]string{"u1"})
	if tr.Stale() {
		t.Error("next snapshot should clear the stale flag")
	}
}

func TestOnlineIsSorted(t *testing.T) {
	tr := NewTracker("u1_u2", nil)
	tr.Replace([]string{"c", "a", "b", "a"})
	if got := tr.Online(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Online() = %v, want [a b c]", got)
	}
}

func TestReplacePublishesSnapshot(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	tr := NewTracker("u1_u2", b)
	tr.Replace([]string{"u2"})

	select {
	case evt := <-ch:
		snap, ok := evt.Payload.(Snapshot)
		if !ok {
			t.Fatalf("payload type = %T, want Snapshot", evt.Payload)
		}
		if snap.Room != "u1_u2" || !slices.Equal(snap.Online, []string{"u2"}) || snap.Stale {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for presence.updated")
	}
}
