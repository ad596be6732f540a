// Package home is the helper dashboard: the nearby request feed around the
// current position and the user's identity channel for accept notifications.
package home

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/handoff"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/push"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/wire"
	"go.uber.org/zap"
)

// Feed defaults.
const (
	DefaultRadiusKm       = 10
	DefaultMoveThresholdM = 50
)

var (
	// ErrNoLocation is returned when posting before any position is known.
	ErrNoLocation = errors.New("current location unknown")
	// ErrUnknownRequest is returned when accepting a request not in the feed.
	ErrUnknownRequest = errors.New("request not in the nearby list")
	// ErrRunning is returned by a second Run.
	ErrRunning = errors.New("home already running")
)

// Identity is the signed-in user as needed here. *identity.Context implements it.
type Identity interface {
	Credentials() (self, token string, err error)
	LastChat() (room.ID, bool)
}

// Feed is the help request REST surface. *api.Client implements it.
type Feed interface {
	Nearby(ctx context.Context, token string, p geo.Point, radiusKm float64) ([]api.HelpRequest, error)
	PostHelp(ctx context.Context, token, description string, p geo.Point) error
}

// Handoffs turns accepts into rooms. *handoff.Handoff implements it.
type Handoffs interface {
	Accept(ctx context.Context, requestID, requesterID string) (room.ID, error)
	Accepted(ctx context.Context, roomID string) (handoff.Result, error)
}

// Request is one feed entry.
type Request struct {
	api.HelpRequest
	DistanceKm float64
	Mine       bool // posted by the signed-in user; shown as waiting
}

// Options configures a Home.
type Options struct {
	Identity        Identity
	Feed            Feed
	Handoffs        Handoffs
	Dial            push.Dialer
	Locator         geo.Locator
	RadiusKm        float64
	MoveThresholdM  float64
	RefreshInterval time.Duration
	LocateTimeout   time.Duration
	Bus             *bus.Bus
	Logger          *zap.Logger
}

// Home owns the identity channel and the feed snapshot.
type Home struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	running  bool
	location geo.Point
	located  bool
	queried  geo.Point
	hasQuery bool
	nearby   []Request
	feedErr  error
	online   bool
	err      error
}

// New creates a Home. Zero radius and threshold take the defaults.
func New(opts Options) *Home {
	if opts.RadiusKm <= 0 {
		opts.RadiusKm = DefaultRadiusKm
	}
	if opts.MoveThresholdM <= 0 {
		opts.MoveThresholdM = DefaultMoveThresholdM
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Home{opts: opts, logger: logger.With(zap.String("component", "home"))}
}

// Run follows the location stream and the identity channel until ctx ends.
// Cancelling ctx closes only the channel Home opened.
func (h *Home) Run(ctx context.Context) error {
	self, token, err := h.opts.Identity.Credentials()
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrRunning
	}
	h.running = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running, h.online = false, false
		h.mu.Unlock()
	}()

	var fixes <-chan geo.Point
	if h.opts.Locator != nil {
		fixes, err = h.opts.Locator.Watch(ctx)
		if err != nil {
			h.logger.Warn("location watch unavailable", zap.Error(err))
		}
	}

	var tr push.Transport
	var events <-chan push.Event
	if h.opts.Dial != nil {
		tr = h.opts.Dial(token)
		if err := tr.Open(ctx); err != nil {
			return fmt.Errorf("open identity channel: %w", err)
		}
		defer tr.Close()
		events = tr.Events()
	}
	return h.loop(ctx, self, tr, fixes, events)
}

func (h *Home) loop(ctx context.Context, self string, tr push.Transport, fixes <-chan geo.Point, events <-chan push.Event) error {
	var tick <-chan time.Time
	if h.opts.RefreshInterval > 0 {
		t := time.NewTicker(h.opts.RefreshInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-fixes:
			if !ok {
				fixes = nil
				continue
			}
			h.onFix(ctx, p)
		case evt, ok := <-events:
			if !ok {
				events = nil
				h.setOnline(false)
				continue
			}
			h.handle(ctx, self, tr, evt)
		case <-tick:
			if p, ok := h.Location(); ok {
				_ = h.query(ctx, p)
			}
		}
	}
}

func (h *Home) handle(ctx context.Context, self string, tr push.Transport, evt push.Event) {
	switch evt.Kind {
	case push.Connected:
		if err := tr.Emit(ctx, wire.EventJoinRoom, self); err != nil {
			h.logger.Warn("identity join failed", zap.Error(err))
			return
		}
		h.setOnline(true)
	case push.Disconnected, push.Reconnecting:
		h.setOnline(false)
	case push.AuthFailed:
		h.setOnline(false)
		h.mu.Lock()
		h.err = fmt.Errorf("%w: %w", api.ErrAuth, evt.Err)
		h.mu.Unlock()
	case push.Message:
		if evt.Frame.Event != wire.EventRequestAccepted {
			return
		}
		var a wire.Accepted
		if err := json.Unmarshal(evt.Frame.Data, &a); err != nil || a.Room() == "" {
			h.logger.Warn("bad requestAccepted payload", zap.ByteString("data", evt.Frame.Data))
			return
		}
		res, err := h.opts.Handoffs.Accepted(ctx, a.Room())
		if err != nil {
			h.logger.Warn("accept notification rejected", zap.String("room", a.Room()), zap.Error(err))
			return
		}
		if res.Fresh {
			h.opts.Bus.Publish(bus.Event{Kind: bus.KindRequestAccepted, Payload: res})
		}
	}
}

func (h *Home) onFix(ctx context.Context, p geo.Point) {
	if !p.Valid() {
		return
	}
	h.mu.Lock()
	h.location, h.located = p, true
	moved := !h.hasQuery || geo.DistanceM(h.queried, p) > h.opts.MoveThresholdM
	h.mu.Unlock()
	if moved {
		_ = h.query(ctx, p)
	}
}

// query replaces the feed with the requests within the radius of p.
func (h *Home) query(ctx context.Context, p geo.Point) error {
	self, token, err := h.opts.Identity.Credentials()
	if err != nil {
		return err
	}
	reqs, err := h.opts.Feed.Nearby(ctx, token, p, h.opts.RadiusKm)
	if err != nil {
		h.logger.Warn("nearby query failed", zap.Error(err))
		h.mu.Lock()
		h.feedErr = err
		h.mu.Unlock()
		return err
	}

	feed := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		d := geo.DistanceKm(p, r.Location)
		if d > h.opts.RadiusKm {
			continue
		}
		feed = append(feed, Request{HelpRequest: r, DistanceKm: d, Mine: r.RequesterID == self})
	}
	slices.SortStableFunc(feed, func(a, b Request) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}
		return 0
	})

	h.mu.Lock()
	h.queried, h.hasQuery = p, true
	h.nearby = feed
	h.feedErr = nil
	h.mu.Unlock()
	h.logger.Debug("nearby refreshed", zap.Stringer("at", p), zap.Int("requests", len(feed)))
	h.opts.Bus.Publish(bus.Event{Kind: bus.KindNearbyUpdated, Payload: slices.Clone(feed)})
	return nil
}

// Refresh takes a single fix and re-queries the feed around it.
func (h *Home) Refresh(ctx context.Context) error {
	p, err := geo.Acquire(ctx, h.opts.Locator, h.opts.LocateTimeout)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.location, h.located = p, true
	h.mu.Unlock()
	return h.query(ctx, p)
}

// Post creates a help request at the current position.
func (h *Home) Post(ctx context.Context, description string) error {
	if err := identity.ValidateDescription(description); err != nil {
		return err
	}
	p, ok := h.Location()
	if !ok {
		return ErrNoLocation
	}
	_, token, err := h.opts.Identity.Credentials()
	if err != nil {
		return err
	}
	if err := h.opts.Feed.PostHelp(ctx, token, description, p); err != nil {
		return fmt.Errorf("post help request: %w", err)
	}
	h.logger.Info("help request posted", zap.Stringer("at", p))
	return h.query(ctx, p)
}

// Accept claims a request from the feed and returns the room to open.
func (h *Home) Accept(ctx context.Context, requestID string) (room.ID, error) {
	req, ok := h.find(requestID)
	if !ok {
		return "", ErrUnknownRequest
	}
	if req.Mine {
		return "", handoff.ErrOwnRequest
	}
	id, err := h.opts.Handoffs.Accept(ctx, requestID, req.RequesterID)
	if err != nil {
		return "", err
	}
	if p, ok := h.Location(); ok {
		_ = h.query(ctx, p)
	}
	return id, nil
}

// LastChat returns the room to resume, if any.
func (h *Home) LastChat() (room.ID, bool) {
	return h.opts.Identity.LastChat()
}

// Nearby returns the current feed, closest first.
func (h *Home) Nearby() []Request {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.nearby)
}

// FeedErr returns the last nearby query failure, cleared on success.
func (h *Home) FeedErr() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.feedErr
}

// Location returns the latest known position.
func (h *Home) Location() (geo.Point, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.location, h.located
}

// Online reports whether the identity channel is joined.
func (h *Home) Online() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online
}

// Err returns why the identity channel stopped, if it did.
func (h *Home) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// RadiusKm returns the configured feed radius.
func (h *Home) RadiusKm() float64 { return h.opts.RadiusKm }

func (h *Home) find(id string) (Request, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.nearby {
		if r.ID == id {
			return r, true
		}
	}
	return Request{}, false
}

func (h *Home) setOnline(v bool) {
	h.mu.Lock()
	h.online = v
	h.mu.Unlock()
}
