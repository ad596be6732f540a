package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/helpline/internal/wire"
)

var fastBackoff = Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}

// startServer runs handler for every accepted websocket connection.
func startServer(t *testing.T, handler func(n int, r *http.Request, conn *websocket.Conn)) string {
	t.Helper()
	var count atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handler(int(count.Add(1)), r, conn)
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// drain reads until the peer goes away so close handshakes complete.
func drain(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case evt, ok := <-c.Events():
		if !ok {
			t.Fatal("event stream closed")
		}
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for push event")
	}
	return Event{}
}

func TestConnectReceiveAndEmit(t *testing.T) {
	gotAuth := make(chan string, 1)
	gotFrame := make(chan wire.Frame, 1)
	url := startServer(t, func(_ int, r *http.Request, conn *websocket.Conn) {
		gotAuth <- r.Header.Get("Authorization")
		ctx := r.Context()
		frame, _ := wire.NewFrame(wire.EventOnlineUsers, []string{"u1", "u2"})
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return
		}
		var in wire.Frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return
		}
		gotFrame <- in
		drain(ctx, conn)
	})

	c := New(Options{URL: url, Token: "tok", Backoff: fastBackoff})
	defer c.Close()
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if evt := nextEvent(t, c); evt.Kind != Connected {
		t.Fatalf("first event = %s, want connect", evt.Kind)
	}
	if auth := <-gotAuth; auth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", auth)
	}
	evt := nextEvent(t, c)
	if evt.Kind != Message || evt.Frame.Event != wire.EventOnlineUsers {
		t.Fatalf("second event = %s/%s, want message/onlineUsers", evt.Kind, evt.Frame.Event)
	}

	if err := c.Emit(context.Background(), wire.EventJoinRoom, "u1_u2"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	select {
	case in := <-gotFrame:
		if in.Event != wire.EventJoinRoom || string(in.Data) != `"u1_u2"` {
			t.Errorf("server got %s %s, want joinRoom \"u1_u2\"", in.Event, in.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never received joinRoom")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	url := startServer(t, func(n int, r *http.Request, conn *websocket.Conn) {
		if n == 1 {
			conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		drain(r.Context(), conn)
	})

	c := New(Options{URL: url, Backoff: fastBackoff})
	defer c.Close()
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []Kind{Connected, Disconnected, Reconnecting, Connected}
	for i, k := range want {
		if evt := nextEvent(t, c); evt.Kind != k {
			t.Fatalf("event %d = %s, want %s", i, evt.Kind, k)
		}
	}
}

func TestUnauthorizedStopsRetrying(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := New(Options{URL: "ws" + strings.TrimPrefix(ts.URL, "http"), Token: "expired", Backoff: fastBackoff})
	defer c.Close()
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if evt := nextEvent(t, c); evt.Kind != AuthFailed {
		t.Fatalf("event = %s, want auth_failed", evt.Kind)
	}
	select {
	case _, ok := <-c.Events():
		if ok {
			t.Error("expected event stream to close after auth failure")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event stream still open")
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	b := fastBackoff
	b.MaxAttempts = 2
	c := New(Options{URL: "ws" + strings.TrimPrefix(ts.URL, "http"), Backoff: b})
	defer c.Close()
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 2; i++ {
		evt := nextEvent(t, c)
		if evt.Kind != Reconnecting || evt.Attempt != i {
			t.Fatalf("event = %s attempt %d, want reconnecting attempt %d", evt.Kind, evt.Attempt, i)
		}
	}
	evt := nextEvent(t, c)
	if evt.Kind != Disconnected || !errors.Is(evt.Err, ErrGaveUp) {
		t.Fatalf("event = %s (%v), want disconnect with ErrGaveUp", evt.Kind, evt.Err)
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1"})
	if err := c.Emit(context.Background(), wire.EventJoinRoom, "u1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit before Open = %v, want ErrNotConnected", err)
	}
	c.Close()
	if err := c.Emit(context.Background(), wire.EventJoinRoom, "u1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Emit after Close = %v, want ErrClosed", err)
	}
	if err := c.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if got := (Backoff{}).Delay(1); got != DefaultBackoff.Initial {
		t.Errorf("zero Backoff Delay(1) = %v, want %v", got, DefaultBackoff.Initial)
	}
}
