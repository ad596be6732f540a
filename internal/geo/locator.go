package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLocationUnavailable is returned when no fix could be obtained,
// including when acquisition timed out.
var ErrLocationUnavailable = errors.New("location unavailable")

// DefaultTimeout bounds single-shot acquisition.
const DefaultTimeout = 10 * time.Second

// Locator is the position sensor.
type Locator interface {
	// Current blocks until a fix is available or ctx ends.
	Current(ctx context.Context) (Point, error)
	// Watch streams fixes until ctx ends, then closes the channel.
	Watch(ctx context.Context) (<-chan Point, error)
}

// Acquire takes one fix with a bounded wait. Every failure matches
// ErrLocationUnavailable.
func Acquire(ctx context.Context, l Locator, timeout time.Duration) (Point, error) {
	if l == nil {
		return Point{}, fmt.Errorf("%w: no locator", ErrLocationUnavailable)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := l.Current(ctx)
	if err != nil {
		if errors.Is(err, ErrLocationUnavailable) {
			return Point{}, err
		}
		return Point{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
	}
	if !p.Valid() {
		return Point{}, fmt.Errorf("%w: invalid fix %s", ErrLocationUnavailable, p)
	}
	return p, nil
}

// Static always reports the same position.
type Static struct {
	P Point
}

// Current returns the fixed position.
func (s Static) Current(context.Context) (Point, error) {
	if !s.P.Valid() {
		return Point{}, fmt.Errorf("%w: invalid static position", ErrLocationUnavailable)
	}
	return s.P, nil
}

// Watch emits the fixed position once.
func (s Static) Watch(ctx context.Context) (<-chan Point, error) {
	if !s.P.Valid() {
		return nil, fmt.Errorf("%w: invalid static position", ErrLocationUnavailable)
	}
	ch := make(chan Point, 1)
	ch <- s.P
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Manual is a Locator driven by Set, for interactive use and tests.
// Current waits for the first Set.
type Manual struct {
	mu      sync.Mutex
	cur     Point
	has     bool
	err     error
	ready   chan struct{}
	next    int
	watches map[int]chan Point
}

// NewManual creates a Manual locator with no fix.
func NewManual() *Manual {
	return &Manual{ready: make(chan struct{}), watches: make(map[int]chan Point)}
}

// Set records a new fix and forwards it to watchers. A watcher that has not
// consumed the previous fix gets the newer one instead.
func (m *Manual) Set(p Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = p
	m.err = nil
	if !m.has {
		m.has = true
		close(m.ready)
	}
	for _, ch := range m.watches {
		select {
		case <-ch:
		default:
		}
		ch <- p
	}
}

// Fail makes Current return err until the next Set.
func (m *Manual) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Current returns the latest fix, waiting for the first one.
func (m *Manual) Current(ctx context.Context) (Point, error) {
	m.mu.Lock()
	ready, err := m.ready, m.err
	m.mu.Unlock()
	if err != nil {
		return Point{}, err
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return Point{}, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Point{}, m.err
	}
	return m.cur, nil
}

// Watch streams fixes. The latest known fix, if any, is delivered first.
func (m *Manual) Watch(ctx context.Context) (<-chan Point, error) {
	ch := make(chan Point, 1)
	m.mu.Lock()
	id := m.next
	m.next++
	m.watches[id] = ch
	if m.has {
		ch <- m.cur
	}
	m.mu.Unlock()

	out := make(chan Point)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.watches, id)
			m.mu.Unlock()
		}()
		for {
			select {
			case p := <-ch:
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
