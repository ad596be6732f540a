package push

import (
	"context"

	"go.uber.org/zap"
)

// Transport is a push connection as seen by its owner. *Client implements it.
type Transport interface {
	Open(ctx context.Context) error
	Events() <-chan Event
	Emit(ctx context.Context, event string, data any) error
	Close() error
}

// Dialer builds a fresh, unopened transport authenticated with token.
type Dialer func(token string) Transport

// NewDialer returns a Dialer producing websocket clients for url.
func NewDialer(url string, backoff Backoff, logger *zap.Logger) Dialer {
	return func(token string) Transport {
		return New(Options{URL: url, Token: token, Backoff: backoff, Logger: logger})
	}
}
