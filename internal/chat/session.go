// Package chat runs one two-party chat room: its push connection, its
// timeline and the peer's presence.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/presence"
	"github.com/matheus3301/helpline/internal/push"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/status"
	intsync "github.com/matheus3301/helpline/internal/sync"
	"github.com/matheus3301/helpline/internal/wire"
	"go.uber.org/zap"
)

// UnknownPeer is shown when the peer's profile cannot be fetched.
const UnknownPeer = "Unknown"

var (
	// ErrEmptyMessage is returned by SendText for a blank body.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotJoined is returned by sends while the session is not JOINED.
	ErrNotJoined = errors.New("chat is not connected")
	// ErrShareInFlight is returned by ShareLocation while a fix is pending.
	ErrShareInFlight = errors.New("location share already in progress")
	// ErrClosed is returned by every operation once the session has closed.
	ErrClosed = errors.New("chat session closed")
	// ErrStarted is returned by a second call to Start.
	ErrStarted = errors.New("chat session already started")
)

// Directory is the REST surface a session needs.
type Directory interface {
	History(ctx context.Context, roomID room.ID, token string) ([]message.Message, error)
	User(ctx context.Context, id, token string) (*api.User, error)
}

// Credentials yields the logged-in user id and a usable token.
type Credentials interface {
	Credentials() (self, token string, err error)
}

// LocationUnavailable is the payload of chat.location_unavailable events.
type LocationUnavailable struct {
	Room room.ID
	Err  error
}

// Options configures a session.
type Options struct {
	Room          room.ID
	Identity      Credentials
	API           Directory
	Dial          push.Dialer
	Locator       geo.Locator
	LocateTimeout time.Duration
	Bus           *bus.Bus
	Logger        *zap.Logger
}

// Session owns one room. All mutable state belongs to the loop goroutine;
// public methods post commands to it.
type Session struct {
	opts     Options
	room     room.ID
	logger   *zap.Logger
	machine  *status.Machine
	presence *presence.Tracker
	cmds     chan func()
	done     chan struct{}

	life    sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	// closeErr is written by the loop before done is closed.
	closeErr error

	// Loop-owned.
	ctx       context.Context
	self      string
	token     string
	transport push.Transport
	recon     *intsync.Reconciler
	sharing   bool

	mu         sync.RWMutex
	peer       string
	peerName   string
	timeline   []message.Message
	historyErr error
	err        error
}

// New validates the room id and prepares an idle session. Non-canonical ids
// are normalized.
func New(opts Options) (*Session, error) {
	id, err := room.Normalize(opts.Room.String())
	if err != nil {
		return nil, err
	}
	if opts.Identity == nil || opts.API == nil || opts.Dial == nil {
		return nil, errors.New("chat: identity, api and dialer are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("room", id.String()))
	return &Session{
		opts:     opts,
		room:     id,
		logger:   logger,
		machine:  status.NewMachine(id, opts.Bus),
		presence: presence.NewTracker(id, opts.Bus),
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		recon:    intsync.NewReconciler(logger),
	}, nil
}

// Start moves the session to CONNECTING: it opens the session's own push
// connection and fetches history and the peer's name in the background.
// Cancelling ctx tears the session down as Close does.
func (s *Session) Start(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrStarted
	}

	self, token, err := s.opts.Identity.Credentials()
	if err != nil {
		return err
	}
	peer, err := room.OtherParticipant(s.room, self)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	transport := s.opts.Dial(token)
	if err := transport.Open(ctx); err != nil {
		cancel()
		return fmt.Errorf("open push channel: %w", err)
	}
	if err := s.machine.Transition(status.Connecting); err != nil {
		cancel()
		_ = transport.Close()
		return err
	}

	s.started = true
	s.cancel = cancel
	s.ctx = ctx
	s.self, s.token = self, token
	s.transport = transport
	s.mu.Lock()
	s.peer = peer
	s.mu.Unlock()

	s.logger.Info("chat session starting", zap.String("peer", peer))
	go s.loop(ctx)
	go s.fetchHistory(ctx)
	go s.lookupPeer(ctx, peer)
	return nil
}

// SendText emits a text message. The timeline entry arrives with the
// server's echo.
func (s *Session) SendText(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}
	var err error
	if perr := s.do(func() { err = s.sendText(ctx, body) }); perr != nil {
		return perr
	}
	return err
}

// ShareLocation takes one position fix in the background and shares it.
// Only one share can be in flight at a time.
func (s *Session) ShareLocation(ctx context.Context) error {
	var err error
	if perr := s.do(func() { err = s.startShare() }); perr != nil {
		return perr
	}
	return err
}

// Close tears the session down. It closes only this session's connection
// and is idempotent.
func (s *Session) Close() error {
	s.life.Lock()
	if s.closed {
		s.life.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	cancel := s.cancel
	s.life.Unlock()

	if !started {
		close(s.done)
		s.finish()
		return nil
	}
	cancel()
	<-s.done
	return s.closeErr
}

// finish moves the machine to CLOSED once nothing else can run.
func (s *Session) finish() {
	if !s.machine.Is(status.Closed) {
		if err := s.machine.Transition(status.Closed); err != nil {
			s.logger.Warn("close transition", zap.Error(err))
		}
	}
	s.logger.Info("chat session closed")
}

// State returns the current lifecycle state.
func (s *Session) State() status.State { return s.machine.Current() }

// Room returns the canonical room id.
func (s *Session) Room() room.ID { return s.room }

// Peer returns the other participant, known once started.
func (s *Session) Peer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

// PeerName returns the peer's display name, UnknownPeer until it resolves
// or when the lookup failed.
func (s *Session) PeerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.peerName == "" {
		return UnknownPeer
	}
	return s.peerName
}

// PeerOnline reports whether the peer is in the latest presence snapshot.
func (s *Session) PeerOnline() bool {
	return s.presence.IsOnline(s.Peer())
}

// PresenceStale reports whether presence may be outdated after a drop.
func (s *Session) PresenceStale() bool { return s.presence.Stale() }

// Online returns the latest presence snapshot.
func (s *Session) Online() []string { return s.presence.Online() }

// Timeline returns a copy of the reconciled timeline.
func (s *Session) Timeline() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]message.Message, len(s.timeline))
	copy(out, s.timeline)
	return out
}

// HistoryErr returns the history fetch failure, if any. It matches
// api.ErrHistoryUnavailable.
func (s *Session) HistoryErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyErr
}

// Err returns the reason the push channel stopped for good: an auth
// rejection or exhausted reconnect attempts.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done is closed once the session stops processing events.
func (s *Session) Done() <-chan struct{} { return s.done }

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	s.life.Lock()
	started, closed := s.started, s.closed
	s.life.Unlock()
	if closed {
		return ErrClosed
	}
	if !started {
		return ErrNotJoined
	}

	finished := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrClosed
	}
	<-finished
	return nil
}

// post hands a background result to the loop. It is dropped once the
// session stops.
func (s *Session) post(ctx context.Context, fn func()) {
	select {
	case s.cmds <- fn:
	case <-ctx.Done():
	}
}

func (s *Session) loop(ctx context.Context) {
	defer func() {
		s.life.Lock()
		s.closed = true
		s.life.Unlock()
		s.closeErr = s.transport.Close()
		s.finish()
		close(s.done)
	}()
	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.cmds:
			fn()
		case evt, ok := <-events:
			if !ok {
				events = nil
				s.moveTo(status.Disconnected)
				s.presence.MarkStale()
				continue
			}
			s.handle(ctx, evt)
		}
	}
}

func (s *Session) handle(ctx context.Context, evt push.Event) {
	switch evt.Kind {
	case push.Connected:
		if s.machine.Is(status.Disconnected) {
			s.moveTo(status.Reconnecting)
		}
		s.join(ctx)
		s.moveTo(status.Joined)

	case push.Disconnected:
		if evt.Err != nil && errors.Is(evt.Err, push.ErrGaveUp) {
			s.setErr(evt.Err)
		}
		s.moveTo(status.Disconnected)
		s.presence.MarkStale()

	case push.Reconnecting:
		s.logger.Debug("push channel reconnecting", zap.Int("attempt", evt.Attempt))
		s.moveTo(status.Reconnecting)

	case push.AuthFailed:
		s.setErr(fmt.Errorf("%w: %w", api.ErrAuth, evt.Err))
		s.moveTo(status.Disconnected)
		s.presence.MarkStale()

	case push.Message:
		s.handleFrame(evt.Frame)
	}
}

// join declares the identity channel and then the room. Both are
// fire-and-forget.
func (s *Session) join(ctx context.Context) {
	for _, id := range []string{s.self, s.room.String()} {
		if err := s.transport.Emit(ctx, wire.EventJoinRoom, id); err != nil {
			s.logger.Warn("joinRoom failed", zap.String("channel", id), zap.Error(err))
		}
	}
}

func (s *Session) handleFrame(f wire.Frame) {
	switch f.Event {
	case wire.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(f.Data, &ids); err != nil {
			s.logger.Warn("bad onlineUsers payload", zap.Error(err))
			return
		}
		s.presence.Replace(ids)

	case wire.EventReceiveMessage, wire.EventReceiveLocation:
		m, err := wire.DecodeMessage(f.Data)
		if err != nil {
			s.logger.Warn("dropping undecodable message", zap.String("event", f.Event), zap.Error(err))
			return
		}
		if r := m.Meta().Room; r != "" && r != s.room {
			s.logger.Debug("ignoring message for another room", zap.String("msg_room", r.String()))
			return
		}
		s.apply(s.recon.Live(m))

	case wire.EventRequestAccepted:
		// The identity channel is joined here too; handoffs are handled by home.
		s.logger.Debug("request accepted notification on chat channel")

	case wire.EventError:
		var e wire.ErrorData
		_ = json.Unmarshal(f.Data, &e)
		s.logger.Warn("server error", zap.String("message", e.Message))

	default:
		s.logger.Debug("ignoring push event", zap.String("event", f.Event))
	}
}

func (s *Session) sendText(ctx context.Context, body string) error {
	if !s.machine.Is(status.Joined) {
		return ErrNotJoined
	}
	m := wire.NewText(s.room, s.self, s.Peer(), body)
	if err := s.transport.Emit(ctx, wire.EventSendMessage, wire.FromMessage(m)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	s.logger.Debug("message sent", zap.String("msg_id", m.ID))
	return nil
}

func (s *Session) startShare() error {
	if !s.machine.Is(status.Joined) {
		return ErrNotJoined
	}
	if s.sharing {
		return ErrShareInFlight
	}
	s.sharing = true
	go s.locate(s.ctx)
	return nil
}

// locate runs off the loop; the result is applied on it.
func (s *Session) locate(ctx context.Context) {
	p, err := geo.Acquire(ctx, s.opts.Locator, s.opts.LocateTimeout)
	s.post(ctx, func() {
		s.sharing = false
		if err != nil {
			s.logger.Warn("location unavailable", zap.Error(err))
			s.opts.Bus.Publish(bus.Event{
				Kind:    bus.KindLocationUnavailable,
				Payload: LocationUnavailable{Room: s.room, Err: err},
			})
			return
		}
		if !s.machine.Is(status.Joined) {
			s.logger.Info("dropping location share, channel went down")
			return
		}
		m := wire.NewLocation(s.room, s.self, s.Peer(), p.Latitude, p.Longitude)
		if err := s.transport.Emit(ctx, wire.EventShareLocation, wire.FromMessage(m)); err != nil {
			s.logger.Warn("share location failed", zap.Error(err))
		}
	})
}

func (s *Session) fetchHistory(ctx context.Context) {
	hist, err := s.opts.API.History(ctx, s.room, s.token)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("history unavailable", zap.Error(err))
		hist = nil
	}
	s.post(ctx, func() {
		if err != nil {
			s.mu.Lock()
			s.historyErr = err
			s.mu.Unlock()
		}
		s.apply(s.recon.Resolve(hist))
	})
}

func (s *Session) lookupPeer(ctx context.Context, peer string) {
	u, err := s.opts.API.User(ctx, peer, s.token)
	if err != nil {
		s.logger.Debug("peer lookup failed", zap.String("peer", peer), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.peerName = u.Name
	s.mu.Unlock()
}

// apply publishes newly reconciled messages to the snapshot and the bus.
func (s *Session) apply(msgs []message.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	s.timeline = append(s.timeline, msgs...)
	s.mu.Unlock()
	for _, m := range msgs {
		s.opts.Bus.Publish(bus.Event{Kind: bus.KindMessage, Payload: m})
	}
}

// moveTo transitions unless already in the target state.
func (s *Session) moveTo(to status.State) {
	if s.machine.Is(to) {
		return
	}
	if err := s.machine.Transition(to); err != nil {
		s.logger.Warn("unexpected transport event", zap.Error(err))
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
