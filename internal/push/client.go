package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/helpline/internal/wire"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by Emit while the connection is down.
	ErrNotConnected = errors.New("push channel not connected")
	// ErrClosed is returned when the client was already closed.
	ErrClosed = errors.New("push client closed")
	// ErrGaveUp is carried by the final Disconnected event once the
	// reconnect attempt limit is exhausted.
	ErrGaveUp = errors.New("reconnect attempts exhausted")
)

const (
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
	eventBuffer  = 64
)

// Options configures a push client.
type Options struct {
	URL     string
	Token   string
	Backoff Backoff
	Logger  *zap.Logger
}

// Client owns a single websocket connection and keeps it alive with
// exponential-backoff reconnects. Lifecycle and server events are delivered
// on Events in the order they happened.
type Client struct {
	opts   Options
	logger *zap.Logger
	events chan Event

	mu     sync.Mutex
	conn   *websocket.Conn
	opened bool
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client. No connection is made until Open.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		opts:   opts,
		logger: logger.With(zap.String("component", "push")),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Events returns the event stream. It is closed when the client stops.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Open starts the connect loop in the background. It returns immediately.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.opened {
		return errors.New("push client already open")
	}
	c.opened = true
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	return nil
}

// Emit sends one frame. Delivery is fire-and-forget; it fails only when no
// connection is up or the write itself fails.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := wire.NewFrame(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// Close tears the connection down and waits for the loop to exit. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	opened := c.opened
	conn := c.conn
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if opened {
		<-c.done
	} else {
		close(c.events)
	}
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)

	attempt := 0
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, errUnauthorized) {
				c.logger.Warn("push channel rejected token", zap.Error(err))
				c.emit(ctx, Event{Kind: AuthFailed, Err: err})
				return
			}
			c.logger.Warn("dial failed", zap.Error(err), zap.Int("attempt", attempt))
			if !c.backoff(ctx, &attempt, err) {
				return
			}
			continue
		}

		attempt = 0
		c.setConn(conn)
		c.logger.Info("push channel connected")
		c.emit(ctx, Event{Kind: Connected})

		err = c.readLoop(ctx, conn)
		c.setConn(nil)
		_ = conn.CloseNow()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push channel dropped", zap.Error(err))
		c.emit(ctx, Event{Kind: Disconnected, Err: err})
		if !c.backoff(ctx, &attempt, err) {
			return
		}
	}
}

// backoff announces the next attempt and sleeps for its delay. It returns
// false when the loop should stop.
func (c *Client) backoff(ctx context.Context, attempt *int, cause error) bool {
	*attempt++
	if limit := c.opts.Backoff.MaxAttempts; limit > 0 && *attempt > limit {
		c.emit(ctx, Event{Kind: Disconnected, Err: fmt.Errorf("%w: %v", ErrGaveUp, cause)})
		return false
	}
	c.emit(ctx, Event{Kind: Reconnecting, Attempt: *attempt, Err: cause})

	t := time.NewTimer(c.opts.Backoff.Delay(*attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var errUnauthorized = errors.New("unauthorized")

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", errUnauthorized, resp.StatusCode)
		}
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if frame.Event == "" {
			continue
		}
		c.emit(ctx, Event{Kind: Message, Frame: frame})
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// emit blocks until the consumer takes the event, so ordering is preserved
// and nothing is dropped. Cancellation unblocks it.
func (c *Client) emit(ctx context.Context, evt Event) {
	select {
	case c.events <- evt:
	case <-ctx.Done():
	}
}
