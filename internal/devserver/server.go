// Package devserver is an in-memory helpline backend: the REST endpoints and
// the push channel, enough to run the client locally and to drive it in
// tests. Nothing is persisted.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const contextKeyUserID = "user_id"

// Options configures a dev server.
type Options struct {
	Secret     []byte
	TokenTTL   time.Duration
	RadiusKm   float64
	BcryptCost int
	Logger     *zap.Logger
}

// Server is the in-memory backend.
type Server struct {
	opts   Options
	logger *zap.Logger
	router *gin.Engine
	hub    *hub

	mu       sync.Mutex
	users    map[string]*account
	emails   map[string]string
	messages map[string][]storedMessage
	requests map[string]*helpRequest
	order    []string
}

// New builds a server with its routes installed.
func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(uuid.NewString())
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.RadiusKm <= 0 {
		opts.RadiusKm = 10
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		opts:     opts,
		logger:   logger.With(zap.String("component", "devserver")),
		users:    make(map[string]*account),
		emails:   make(map[string]string),
		messages: make(map[string][]storedMessage),
		requests: make(map[string]*helpRequest),
	}
	s.hub = newHub(s, s.logger)
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving REST and /ws.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()
	s.logger.Info("dev server listening", zap.String("addr", addr))

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.POST("/auth/register", s.handleRegister)
	r.POST("/auth/login", s.handleLogin)
	r.GET("/ws", s.handleWebSocket)

	authed := r.Group("/", s.requireAuth())
	authed.GET("/users/profile", s.handleGetProfile)
	authed.PUT("/users/profile", s.handleUpdateProfile)
	authed.GET("/users/:id", s.handleGetUser)
	authed.GET("/messages/:roomId", s.handleHistory)
	authed.GET("/help/nearby", s.handleNearby)
	authed.POST("/help", s.handlePostHelp)
	authed.PUT("/help/:id/accept", s.handleAccept)
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err.Error()))
			return
		}
		c.Set(contextKeyUserID, userID)
		c.Next()
	}
}

// authenticate resolves the bearer token of r to a known user id.
func (s *Server) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("missing authorization header")
	}
	userID, err := s.parseToken(raw)
	if err != nil {
		return "", errors.New("invalid token")
	}
	s.mu.Lock()
	_, known := s.users[userID]
	s.mu.Unlock()
	if !known {
		return "", errors.New("unknown user")
	}
	return userID, nil
}

// IssueToken signs a token for userID.
func (s *Server) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
}

func (s *Server) parseToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.opts.Secret, nil
	})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Kick drops every push connection of userID, as a network blip would.
func (s *Server) Kick(userID string) int {
	return s.hub.kick(userID)
}

// Online reports whether userID has a live push connection.
func (s *Server) Online(userID string) bool {
	return s.hub.online(userID)
}

func errorResponse(msg string) gin.H {
	return gin.H{"message": msg}
}
