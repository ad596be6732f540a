// Package handoff turns an accepted help request into a chat room for both
// sides: the accepter through Accept, the requester through the
// requestAccepted push notification.
package handoff

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/store"
	"go.uber.org/zap"
)

// ErrOwnRequest is returned when accepting a request one posted oneself.
var ErrOwnRequest = errors.New("cannot accept your own request")

// Identity is the signed-in user as needed here. *identity.Context implements it.
type Identity interface {
	Credentials() (self, token string, err error)
	SetLastChat(id room.ID) error
}

// Server is the REST surface used by handoffs. *api.Client implements it.
type Server interface {
	Accept(ctx context.Context, token, requestID string) error
	User(ctx context.Context, id, token string) (*api.User, error)
}

// Records persists handoffs. *store.DB implements it.
type Records interface {
	RecordHandoff(h *store.Handoff) (fresh bool, err error)
	ListHandoffs(selfID string, limit int) ([]store.Handoff, error)
}

// Result describes a handled acceptance.
type Result struct {
	Room  room.ID
	Peer  string
	Fresh bool // false when this room was already handed off
}

// Handoff coordinates accepts. Safe for concurrent use.
type Handoff struct {
	id      Identity
	server  Server
	records Records
	logger  *zap.Logger
}

// New creates a Handoff. logger may be nil.
func New(id Identity, server Server, records Records, logger *zap.Logger) *Handoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handoff{id: id, server: server, records: records, logger: logger.With(zap.String("component", "handoff"))}
}

// Accept claims requestID posted by requesterID and returns the room to open.
// The server is the only arbiter; a lost race fails with api.ErrAcceptRejected.
func (h *Handoff) Accept(ctx context.Context, requestID, requesterID string) (room.ID, error) {
	self, token, err := h.id.Credentials()
	if err != nil {
		return "", err
	}
	if err := room.ValidateParticipant(requesterID); err != nil {
		return "", err
	}
	if requesterID == self {
		return "", ErrOwnRequest
	}
	if err := h.server.Accept(ctx, token, requestID); err != nil {
		return "", fmt.Errorf("accept request %s: %w", requestID, err)
	}

	id := room.Canonical(requesterID, self)
	h.logger.Info("request accepted", zap.String("request_id", requestID), zap.String("room", id.String()))
	rec := newRecord(self, id, requesterID, requestID, store.RoleAccepter)
	rec.PeerName = h.peerName(ctx, requesterID, token)
	if _, err := h.record(id, rec); err != nil {
		return id, err
	}
	return id, nil
}

// Accepted handles a requestAccepted notification addressed to self.
// Notifications are delivered at least once; a repeat for a recorded room
// only refreshes lastChat and reports Fresh false. Accepted does not wait
// on the server: the peer's display name is looked up in the background
// and filled into the record when it arrives.
func (h *Handoff) Accepted(ctx context.Context, roomID string) (Result, error) {
	self, token, err := h.id.Credentials()
	if err != nil {
		return Result{}, err
	}
	id, err := room.Normalize(roomID)
	if err != nil {
		return Result{}, err
	}
	peer, err := room.OtherParticipant(id, self)
	if err != nil {
		return Result{}, err
	}

	rec := newRecord(self, id, peer, "", store.RoleRequester)
	fresh, err := h.record(id, rec)
	if err != nil {
		return Result{}, err
	}
	if fresh {
		h.logger.Info("our request was accepted", zap.String("room", id.String()), zap.String("peer", peer))
		go h.fillPeerName(ctx, *rec, token)
	} else {
		h.logger.Debug("duplicate accept notification", zap.String("room", id.String()))
	}
	return Result{Room: id, Peer: peer, Fresh: fresh}, nil
}

// Recent lists self's handoffs, most recent first.
func (h *Handoff) Recent(limit int) ([]store.Handoff, error) {
	self, _, err := h.id.Credentials()
	if err != nil {
		return nil, err
	}
	return h.records.ListHandoffs(self, limit)
}

func newRecord(self string, id room.ID, peer, requestID, role string) *store.Handoff {
	return &store.Handoff{
		SelfID:    self,
		RoomID:    id.String(),
		PeerID:    peer,
		RequestID: requestID,
		Role:      role,
	}
}

func (h *Handoff) record(id room.ID, rec *store.Handoff) (bool, error) {
	if err := h.id.SetLastChat(id); err != nil {
		return false, fmt.Errorf("save last chat: %w", err)
	}
	fresh, err := h.records.RecordHandoff(rec)
	if err != nil {
		return false, fmt.Errorf("record handoff: %w", err)
	}
	return fresh, nil
}

// fillPeerName upserts rec again once the peer's name is known.
func (h *Handoff) fillPeerName(ctx context.Context, rec store.Handoff, token string) {
	rec.PeerName = h.peerName(ctx, rec.PeerID, token)
	if rec.PeerName == "" {
		return
	}
	if _, err := h.records.RecordHandoff(&rec); err != nil {
		h.logger.Warn("save peer name", zap.String("room", rec.RoomID), zap.Error(err))
	}
}

// peerName is best effort; an empty name keeps whatever was recorded.
func (h *Handoff) peerName(ctx context.Context, peer, token string) string {
	u, err := h.server.User(ctx, peer, token)
	if err != nil {
		h.logger.Debug("peer lookup failed", zap.String("peer", peer), zap.Error(err))
		return ""
	}
	return u.Name
}
