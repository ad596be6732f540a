package home

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/handoff"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/push"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/wire"
)

var origin = geo.Point{Latitude: 12.9716, Longitude: 77.5946}

type fakeIdentity struct {
	self string
	last room.ID
}

func (f *fakeIdentity) Credentials() (string, string, error) {
	if f.self == "" {
		return "", "", identity.ErrNotLoggedIn
	}
	return f.self, "tok", nil
}

func (f *fakeIdentity) LastChat() (room.ID, bool) { return f.last, f.last != "" }

type fakeFeed struct {
	mu       sync.Mutex
	requests []api.HelpRequest
	queries  []geo.Point
	radius   float64
	posted   []string
}

func (f *fakeFeed) Nearby(_ context.Context, _ string, p geo.Point, radiusKm float64) ([]api.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, p)
	f.radius = radiusKm
	return append([]api.HelpRequest(nil), f.requests...), nil
}

func (f *fakeFeed) PostHelp(_ context.Context, _ string, description string, p geo.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, description)
	f.requests = append(f.requests, api.HelpRequest{ID: "mine", RequesterID: "u1", Description: description, Location: p})
	return nil
}

func (f *fakeFeed) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeHandoffs struct {
	mu       sync.Mutex
	accepted []string
	seen     map[string]bool
}

func (f *fakeHandoffs) Accept(_ context.Context, requestID, requesterID string) (room.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, requestID)
	return room.Canonical(requesterID, "u1"), nil
}

func (f *fakeHandoffs) Accepted(_ context.Context, roomID string) (handoff.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	fresh := !f.seen[roomID]
	f.seen[roomID] = true
	return handoff.Result{Room: room.ID(roomID), Fresh: fresh}, nil
}

type fakeTransport struct {
	events chan push.Event

	mu     sync.Mutex
	joins  []string
	closed bool
}

func (f *fakeTransport) Open(context.Context) error { return nil }
func (f *fakeTransport) Events() <-chan push.Event { return f.events }

func (f *fakeTransport) Emit(_ context.Context, event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event == wire.EventJoinRoom {
		f.joins = append(f.joins, data.(string))
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type harness struct {
	home *Home
	feed *fakeFeed
	hand *fakeHandoffs
	tr   *fakeTransport
	loc  *geo.Manual
	bus  *bus.Bus
	stop func()
}

func newHarness(t *testing.T, reqs []api.HelpRequest) *harness {
	t.Helper()
	h := &harness{
		feed: &fakeFeed{requests: reqs},
		hand: &fakeHandoffs{},
		tr:   &fakeTransport{events: make(chan push.Event, 8)},
		loc:  geo.NewManual(),
		bus:  bus.New(),
	}
	h.home = New(Options{
		Identity: &fakeIdentity{self: "u1", last: "u1_u9"},
		Feed:     h.feed,
		Handoffs: h.hand,
		Dial:     func(string) push.Transport { return h.tr },
		Locator:  h.loc,
		Bus:      h.bus,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.home.Run(ctx) }()
	h.stop = func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run = %v", err)
		}
	}
	t.Cleanup(func() {
		if h.stop != nil {
			h.stop()
		}
	})
	return h
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// north offsets p by roughly meters to the north.
func north(p geo.Point, meters float64) geo.Point {
	return geo.Point{Latitude: p.Latitude + meters/111_195, Longitude: p.Longitude}
}

func TestQueriesOnFirstFixAndMeaningfulMoves(t *testing.T) {
	h := newHarness(t, nil)

	h.loc.Set(origin)
	waitUntil(t, func() bool { return h.feed.queryCount() == 1 })
	if h.feed.radius != DefaultRadiusKm {
		t.Errorf("radius = %v, want %v", h.feed.radius, DefaultRadiusKm)
	}

	small := north(origin, 20)
	h.loc.Set(small)
	waitUntil(t, func() bool { p, _ := h.home.Location(); return p == small })
	if n := h.feed.queryCount(); n != 1 {
		t.Errorf("queries after 20m move = %d, want 1", n)
	}

	far := north(origin, 500)
	h.loc.Set(far)
	waitUntil(t, func() bool { return h.feed.queryCount() == 2 })
}

func TestFeedFiltersRadiusAndFlagsOwnRequests(t *testing.T) {
	reqs := []api.HelpRequest{
		{ID: "far", RequesterID: "u7", Location: north(origin, 25_000)},
		{ID: "near", RequesterID: "u2", Location: north(origin, 2_000)},
		{ID: "mine", RequesterID: "u1", Location: north(origin, 100)},
	}
	h := newHarness(t, reqs)
	updates, unsub := h.bus.Subscribe(bus.KindNearbyUpdated, 4)
	defer unsub()

	h.loc.Set(origin)
	select {
	case <-updates:
	case <-time.After(3 * time.Second):
		t.Fatal("no nearby update published")
	}

	feed := h.home.Nearby()
	if len(feed) != 2 {
		t.Fatalf("feed = %+v, want 2 entries within 10km", feed)
	}
	if feed[0].ID != "mine" || !feed[0].Mine || feed[1].ID != "near" || feed[1].Mine {
		t.Errorf("feed order/flags = %+v", feed)
	}
	if feed[1].DistanceKm < 1.9 || feed[1].DistanceKm > 2.1 {
		t.Errorf("distance = %v, want about 2km", feed[1].DistanceKm)
	}
}

func TestIdentityChannelJoinsAndHandlesAccepts(t *testing.T) {
	h := newHarness(t, nil)
	accepted, unsub := h.bus.Subscribe(bus.KindRequestAccepted, 4)
	defer unsub()

	h.tr.events <- push.Event{Kind: push.Connected}
	waitUntil(t, h.home.Online)

	frame, _ := wire.NewFrame(wire.EventRequestAccepted, wire.Accepted{ChatID: "u1_u2"})
	h.tr.events <- push.Event{Kind: push.Message, Frame: frame}
	h.tr.events <- push.Event{Kind: push.Message, Frame: frame}

	select {
	case evt := <-accepted:
		if res := evt.Payload.(handoff.Result); res.Room != "u1_u2" {
			t.Errorf("accepted room = %q", res.Room)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no request_accepted event")
	}
	waitUntil(t, func() bool {
		h.hand.mu.Lock()
		defer h.hand.mu.Unlock()
		return len(h.hand.seen) == 1
	})
	time.Sleep(20 * time.Millisecond)
	if len(accepted) != 0 {
		t.Error("redelivered notification published twice")
	}

	h.tr.events <- push.Event{Kind: push.Disconnected}
	waitUntil(t, func() bool { return !h.home.Online() })
	h.tr.events <- push.Event{Kind: push.Connected}
	waitUntil(t, h.home.Online)

	h.tr.mu.Lock()
	joins := append([]string(nil), h.tr.joins...)
	h.tr.mu.Unlock()
	if len(joins) != 2 || joins[0] != "u1" || joins[1] != "u1" {
		t.Errorf("joins = %v, want self on every connect", joins)
	}
}

func TestPostNeedsDescriptionAndLocation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var ve *identity.ValidationError
	if err := h.home.Post(ctx, "   "); !errors.As(err, &ve) {
		t.Errorf("blank description = %v, want ValidationError", err)
	}
	if err := h.home.Post(ctx, "flat tyre"); !errors.Is(err, ErrNoLocation) {
		t.Errorf("Post without fix = %v, want ErrNoLocation", err)
	}

	h.loc.Set(origin)
	waitUntil(t, func() bool { return h.feed.queryCount() == 1 })
	if err := h.home.Post(ctx, "flat tyre"); err != nil {
		t.Fatal(err)
	}
	feed := h.home.Nearby()
	if len(feed) != 1 || !feed[0].Mine {
		t.Errorf("feed after post = %+v", feed)
	}
}

func TestAcceptDelegatesToHandoff(t *testing.T) {
	reqs := []api.HelpRequest{
		{ID: "r2", RequesterID: "u2", Location: north(origin, 300)},
		{ID: "r1", RequesterID: "u1", Location: origin},
	}
	h := newHarness(t, reqs)
	ctx := context.Background()

	if _, err := h.home.Accept(ctx, "r2"); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("Accept before feed = %v, want ErrUnknownRequest", err)
	}
	h.loc.Set(origin)
	waitUntil(t, func() bool { return len(h.home.Nearby()) == 2 })

	if _, err := h.home.Accept(ctx, "r1"); !errors.Is(err, handoff.ErrOwnRequest) {
		t.Errorf("accept own = %v, want ErrOwnRequest", err)
	}
	id, err := h.home.Accept(ctx, "r2")
	if err != nil {
		t.Fatal(err)
	}
	if id != "u1_u2" {
		t.Errorf("room = %q, want u1_u2", id)
	}
	if len(h.hand.accepted) != 1 || h.hand.accepted[0] != "r2" {
		t.Errorf("handoff accepts = %v", h.hand.accepted)
	}
}

func TestRefreshTakesSingleFix(t *testing.T) {
	feed := &fakeFeed{}
	home := New(Options{
		Identity: &fakeIdentity{self: "u1"},
		Feed:     feed,
		Locator:  geo.Static{P: origin},
		RadiusKm: 3,
	})
	if err := home.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if feed.queryCount() != 1 || feed.radius != 3 {
		t.Errorf("queries = %d radius = %v", feed.queryCount(), feed.radius)
	}
	if p, ok := home.Location(); !ok || p != origin {
		t.Errorf("location = %v, %v", p, ok)
	}

	failing := New(Options{Identity: &fakeIdentity{self: "u1"}, Feed: feed})
	if err := failing.Refresh(context.Background()); !errors.Is(err, geo.ErrLocationUnavailable) {
		t.Errorf("Refresh without locator = %v, want ErrLocationUnavailable", err)
	}
}

func TestStopClosesOnlyOwnChannel(t *testing.T) {
	h := newHarness(t, nil)
	if room, ok := h.home.LastChat(); !ok || room != "u1_u9" {
		t.Errorf("LastChat = %q, %v", room, ok)
	}
	h.stop()
	h.stop = nil
	h.tr.mu.Lock()
	defer h.tr.mu.Unlock()
	if !h.tr.closed {
		t.Error("identity channel left open")
	}
}

func TestRunRequiresLogin(t *testing.T) {
	home := New(Options{Identity: &fakeIdentity{}, Feed: &fakeFeed{}})
	if err := home.Run(context.Background()); !errors.Is(err, api.ErrAuth) {
		t.Errorf("Run logged out = %v, want ErrAuth", err)
	}
}
