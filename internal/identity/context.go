package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/store"
)

var (
	// ErrNotLoggedIn is returned when an operation needs a signed-in user.
	ErrNotLoggedIn = fmt.Errorf("not logged in: %w", api.ErrAuth)
	// ErrTokenExpired is returned when the stored token's exp is in the past.
	ErrTokenExpired = fmt.Errorf("session expired, please log in again: %w", api.ErrAuth)
)

// Store persists the identity. *store.DB implements it.
type Store interface {
	LoadState() (store.LocalState, error)
	SaveLogin(token, user string, keepLastChat bool) error
	SaveUser(user string) error
	SaveLastChat(roomID string) error
	ClearState() error
}

// Context is the signed-in identity shared by every component of a process:
// token, user and the room to resume. It is loaded once at startup and
// cleared on logout. Safe for concurrent use.
type Context struct {
	mu       sync.RWMutex
	store    Store
	token    string
	user     api.User
	lastChat room.ID
	now      func() time.Time
}

// New creates an empty context backed by s.
func New(s Store) *Context {
	return &Context{store: s, now: time.Now}
}

// Init loads persisted state. A stored user that no longer decodes is
// treated as logged out.
func (c *Context) Init() error {
	st, err := c.store.LoadState()
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.user, c.lastChat = "", api.User{}, ""
	if st.Token == "" || st.User == "" {
		return nil
	}
	var u api.User
	if err := json.Unmarshal([]byte(st.User), &u); err != nil || u.ID == "" {
		return nil
	}
	c.token, c.user = st.Token, u
	if id, err := room.Normalize(st.LastChat); err == nil && room.IsCanonical(id.String(), u.ID) {
		c.lastChat = id
	}
	return nil
}

// Login stores token and user together. Signing in as a different user
// drops the room to resume.
func (c *Context) Login(token string, u api.User) error {
	if token == "" {
		return errors.New("login: empty token")
	}
	if err := room.ValidateParticipant(u.ID); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sameUser := c.user.ID == u.ID
	if err := c.store.SaveLogin(token, string(raw), sameUser); err != nil {
		return err
	}
	if !sameUser {
		c.lastChat = ""
	}
	c.token, c.user = token, u
	return nil
}

// Logout clears token, user and lastChat.
func (c *Context) Logout() error {
	if err := c.store.ClearState(); err != nil {
		return err
	}
	c.mu.Lock()
	c.token, c.user, c.lastChat = "", api.User{}, ""
	c.mu.Unlock()
	return nil
}

// UpdateUser replaces the stored profile after a successful profile edit.
func (c *Context) UpdateUser(u api.User) error {
	c.mu.RLock()
	self := c.user.ID
	c.mu.RUnlock()
	if self == "" {
		return ErrNotLoggedIn
	}
	if u.ID == "" {
		u.ID = self
	}
	if u.ID != self {
		return fmt.Errorf("update user: id %q is not the signed-in user", u.ID)
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := c.store.SaveUser(string(raw)); err != nil {
		return err
	}
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
	return nil
}

// LoggedIn reports whether a user is signed in.
func (c *Context) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// User returns the signed-in user.
func (c *Context) User() (api.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.token != ""
}

// Self returns the signed-in user's id, or "".
func (c *Context) Self() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user.ID
}

// Token returns the raw token, or "".
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Credentials returns self and a usable token, failing with ErrNotLoggedIn
// or ErrTokenExpired. There is no automatic logout on expiry.
func (c *Context) Credentials() (self, token string, err error) {
	c.mu.RLock()
	self, token = c.user.ID, c.token
	c.mu.RUnlock()
	if token == "" || self == "" {
		return "", "", ErrNotLoggedIn
	}
	if exp, ok := TokenExpiry(token); ok && !c.now().Before(exp) {
		return "", "", ErrTokenExpired
	}
	return self, token, nil
}

// SetLastChat records the room to resume.
func (c *Context) SetLastChat(id room.ID) error {
	if err := c.store.SaveLastChat(id.String()); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastChat = id
	c.mu.Unlock()
	return nil
}

// LastChat returns the room to resume, if any.
func (c *Context) LastChat() (room.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastChat, c.lastChat != ""
}

// TokenExpiry reads the exp claim without verifying the signature; the
// server stays the authority. Opaque tokens report ok=false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
