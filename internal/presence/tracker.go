package presence

import (
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/room"
)

// Snapshot is the payload of presence.updated events.
type Snapshot struct {
	Room   room.ID
	Online []string
	Stale  bool
}

// Tracker holds the latest server presence snapshot for one room.
// Each snapshot replaces the previous set wholesale.
type Tracker struct {
	mu     sync.RWMutex
	room   room.ID
	online map[string]struct{}
	stale  bool
	bus    *bus.Bus
}

// NewTracker creates an empty tracker. b may be nil.
func NewTracker(roomID room.ID, b *bus.Bus) *Tracker {
	return &Tracker{
		room:   roomID,
		online: make(map[string]struct{}),
		bus:    b,
	}
}

// Replace installs ids as the complete online set and clears the stale flag.
func (t *Tracker) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}
	t.mu.Lock()
	t.online = next
	t.stale = false
	t.mu.Unlock()
	t.publish()
}

// MarkStale flags the current set as possibly outdated. The set itself is kept.
func (t *Tracker) MarkStale() {
	t.mu.Lock()
	if t.stale {
		t.mu.Unlock()
		return
	}
	t.stale = true
	t.mu.Unlock()
	t.publish()
}

// IsOnline reports whether id is in the latest snapshot.
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[id]
	return ok
}

// Stale reports whether the transport dropped since the last snapshot.
func (t *Tracker) Stale() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stale
}

// Online returns the online ids, sorted.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (t *Tracker) publish() {
	if t.bus == nil {
		return
	}
	t.mu.RLock()
	stale := t.stale
	t.mu.RUnlock()
	t.bus.Publish(bus.Event{
		Kind:      bus.KindPresenceUpdated,
		Timestamp: time.Now(),
		Payload:   Snapshot{Room: t.room, Online: t.Online(), Stale: stale},
	})
}
