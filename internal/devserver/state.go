package devserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/wire"
	"golang.org/x/crypto/bcrypt"
)

var (
	errEmailTaken         = errors.New("email already registered")
	errInvalidCredentials = errors.New("invalid credentials")
	errNotFound           = errors.New("not found")
	errAlreadyAccepted    = errors.New("request already accepted")
	errOwnRequest         = errors.New("cannot accept your own request")
)

type account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
}

type helpRequest struct {
	ID          string
	UserID      string
	Description string
	Location    geo.Point
	Status      string
	AcceptedBy  string
	CreatedAt   time.Time
}

type storedMessage = wire.MessagePayload

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Register creates an account and returns its id.
func (s *Server) Register(name, email, password string) (string, error) {
	if err := identity.ValidateRegister(name, email, password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[email]; taken {
		return "", errEmailTaken
	}
	id := newID()
	s.users[id] = &account{ID: id, Name: strings.TrimSpace(name), Email: email, PasswordHash: string(hash)}
	s.emails[email] = id
	return id, nil
}

func (s *Server) login(email, password string) (*account, error) {
	s.mu.Lock()
	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	var acc account
	if ok {
		acc = *s.users[id]
	}
	s.mu.Unlock()
	if !ok {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return &acc, nil
}

func (s *Server) account(id string) (account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.users[id]
	if !ok {
		return account{}, false
	}
	return *acc, true
}

func (s *Server) updateAccount(id, name, email string) (account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.users[id]
	if !ok {
		return account{}, errNotFound
	}
	if email != "" && email != acc.Email {
		if _, taken := s.emails[email]; taken {
			return account{}, errEmailTaken
		}
		delete(s.emails, acc.Email)
		s.emails[email] = id
		acc.Email = email
	}
	if strings.TrimSpace(name) != "" {
		acc.Name = strings.TrimSpace(name)
	}
	return *acc, nil
}

// PostHelp creates an open help request owned by userID.
func (s *Server) PostHelp(userID, description string, p geo.Point) (string, error) {
	if err := identity.ValidateDescription(description); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := newID()
	s.requests[id] = &helpRequest{
		ID:          id,
		UserID:      userID,
		Description: strings.TrimSpace(description),
		Location:    p,
		Status:      "open",
		CreatedAt:   time.Now(),
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *Server) nearby(p geo.Point, radiusKm float64) []helpRequest {
	if radiusKm <= 0 {
		radiusKm = s.opts.RadiusKm
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []helpRequest
	for i := len(s.order) - 1; i >= 0; i-- {
		req := s.requests[s.order[i]]
		if req.Status != "open" {
			continue
		}
		if geo.DistanceKm(p, req.Location) <= radiusKm {
			out = append(out, *req)
		}
	}
	return out
}

// accept marks a request as taken, first caller wins.
func (s *Server) accept(requestID, userID string) (helpRequest, room.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return helpRequest{}, "", errNotFound
	}
	if req.UserID == userID {
		return helpRequest{}, "", errOwnRequest
	}
	if req.Status != "open" {
		return helpRequest{}, "", errAlreadyAccepted
	}
	req.Status = "accepted"
	req.AcceptedBy = userID
	return *req, room.Canonical(req.UserID, userID), nil
}

func (s *Server) appendMessage(m storedMessage) storedMessage {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.MongoID = m.ID
	if m.RoomID == "" {
		m.RoomID = m.ChatID
	}
	m.ChatID = m.RoomID
	if time.Time(m.Timestamp).IsZero() {
		m.Timestamp = wire.Timestamp(time.Now().UTC())
	}
	s.mu.Lock()
	s.messages[m.RoomID] = append(s.messages[m.RoomID], m)
	s.mu.Unlock()
	return m
}

func (s *Server) history(roomID string) []storedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storedMessage, len(s.messages[roomID]))
	copy(out, s.messages[roomID])
	return out
}
