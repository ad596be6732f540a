// Package bus fans engine events out to the UI and to tests within one
// process. Delivery never blocks the publisher.
package bus

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus is an in-process publish/subscribe event bus. Subscribers select
// events by kind prefix ("chat.", "home.request_accepted", or "" for all).
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscription
	dropped atomic.Uint64
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers evt to every matching subscriber with room in its
// buffer. A nil Bus discards events.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of events whose kind starts with prefix,
// buffered to bufSize, and a function that ends the subscription. The
// channel is never closed; calling the function more than once is safe.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	sub := &subscription{prefix: prefix, ch: make(chan Event, bufSize)}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(s *subscription) bool { return s == sub })
			b.mu.Unlock()
		})
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
