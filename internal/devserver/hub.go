package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/wire"
	"go.uber.org/zap"
)

const sendBuffer = 64

// peer is one push connection.
type peer struct {
	userID string
	conn   *websocket.Conn
	send   chan wire.Frame
	cancel context.CancelFunc
}

// hub fans frames out to the connections joined to each room. A user's own
// id is also a room: the identity channel.
type hub struct {
	srv    *Server
	logger *zap.Logger

	mu    sync.Mutex
	peers map[*peer]map[string]struct{}
	rooms map[string]map[*peer]struct{}
}

func newHub(srv *Server, logger *zap.Logger) *hub {
	return &hub{
		srv:    srv,
		logger: logger,
		peers:  make(map[*peer]map[string]struct{}),
		rooms:  make(map[string]map[*peer]struct{}),
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	userID, err := s.authenticate(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse(err.Error()))
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	s.hub.serve(c.Request.Context(), userID, conn)
}

func (h *hub) serve(ctx context.Context, userID string, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	p := &peer{userID: userID, conn: conn, send: make(chan wire.Frame, sendBuffer), cancel: cancel}
	h.mu.Lock()
	h.peers[p] = make(map[string]struct{})
	h.mu.Unlock()
	h.logger.Debug("push peer connected", zap.String("user", userID))
	h.broadcastPresence()

	defer func() {
		cancel()
		h.remove(p)
		_ = conn.CloseNow()
		h.logger.Debug("push peer disconnected", zap.String("user", userID))
	}()

	go h.writeLoop(ctx, p)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(p, "malformed frame")
			continue
		}
		h.handle(p, frame)
	}
}

func (h *hub) writeLoop(ctx context.Context, p *peer) {
	for {
		select {
		case frame := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, p.conn, frame)
			cancel()
			if err != nil {
				p.cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *hub) handle(p *peer, frame wire.Frame) {
	switch frame.Event {
	case wire.EventJoinRoom:
		var id string
		if err := json.Unmarshal(frame.Data, &id); err != nil || id == "" {
			h.sendError(p, "joinRoom expects a room id")
			return
		}
		if id != p.userID {
			if _, err := room.OtherParticipant(room.ID(id), p.userID); err != nil {
				h.sendError(p, "not a participant of "+id)
				return
			}
		}
		h.join(p, id)

	case wire.EventSendMessage, wire.EventShareLocation:
		var payload wire.MessagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			h.sendError(p, "invalid message payload")
			return
		}
		payload.Sender = p.userID
		if payload.RoomID == "" {
			payload.RoomID = payload.ChatID
		}
		if !h.joined(p, payload.RoomID) {
			h.sendError(p, "join the room before sending")
			return
		}
		out := wire.EventReceiveMessage
		payload.Type = string(message.KindText)
		if frame.Event == wire.EventShareLocation {
			out = wire.EventReceiveLocation
			payload.Type = string(message.KindLocation)
		}
		if _, err := payload.ToMessage(); err != nil {
			h.sendError(p, err.Error())
			return
		}
		stored := h.srv.appendMessage(payload)
		h.toRoom(stored.RoomID, out, stored)

	default:
		h.sendError(p, "unknown event "+frame.Event)
	}
}

func (h *hub) join(p *peer, id string) {
	h.mu.Lock()
	rooms, ok := h.peers[p]
	if !ok {
		h.mu.Unlock()
		return
	}
	rooms[id] = struct{}{}
	if h.rooms[id] == nil {
		h.rooms[id] = make(map[*peer]struct{})
	}
	h.rooms[id][p] = struct{}{}
	h.mu.Unlock()
	h.broadcastPresence()
}

func (h *hub) joined(p *peer, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.peers[p][id]
	return ok
}

func (h *hub) remove(p *peer) {
	h.mu.Lock()
	rooms := h.peers[p]
	delete(h.peers, p)
	for id := range rooms {
		delete(h.rooms[id], p)
		if len(h.rooms[id]) == 0 {
			delete(h.rooms, id)
		}
	}
	h.mu.Unlock()
	h.broadcastPresence()
}

// broadcastPresence sends every connection the full, sorted set of users
// with at least one open connection.
func (h *hub) broadcastPresence() {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make([]string, 0, len(h.peers))
	for p := range h.peers {
		if !slices.Contains(users, p.userID) {
			users = append(users, p.userID)
		}
	}
	slices.Sort(users)
	frame, err := wire.NewFrame(wire.EventOnlineUsers, users)
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", wire.EventOnlineUsers), zap.Error(err))
		return
	}
	for p := range h.peers {
		h.enqueue(p, frame)
	}
}

func (h *hub) toRoom(id, event string, data any) {
	frame, err := wire.NewFrame(event, data)
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.rooms[id] {
		h.enqueue(p, frame)
	}
}

// enqueue drops the frame for slow peers. Callers hold h.mu.
func (h *hub) enqueue(p *peer, frame wire.Frame) {
	select {
	case p.send <- frame:
	default:
		h.logger.Warn("dropping frame for slow peer", zap.String("user", p.userID), zap.String("event", frame.Event))
	}
}

func (h *hub) sendError(p *peer, msg string) {
	frame, _ := wire.NewFrame(wire.EventError, wire.ErrorData{Message: msg})
	h.mu.Lock()
	h.enqueue(p, frame)
	h.mu.Unlock()
}

func (h *hub) kick(userID string) int {
	h.mu.Lock()
	var victims []*peer
	for p := range h.peers {
		if p.userID == userID {
			victims = append(victims, p)
		}
	}
	h.mu.Unlock()
	for _, p := range victims {
		p.cancel()
		_ = p.conn.CloseNow()
	}
	return len(victims)
}

func (h *hub) online(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if p.userID == userID {
			return true
		}
	}
	return false
}

func (h *hub) closeAll() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		_ = p.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
