package push

import (
	"time"

	"github.com/matheus3301/helpline/internal/wire"
)

// Kind classifies a transport event.
type Kind int

const (
	// Connected fires once per successful dial, before any frame of that connection.
	Connected Kind = iota
	// Disconnected fires when an established connection drops, or when
	// reconnecting is abandoned.
	Disconnected
	// Reconnecting fires before each redial attempt.
	Reconnecting
	// Message carries a server frame.
	Message
	// AuthFailed fires when the server rejects the token. The client stops.
	AuthFailed
)

func (k Kind) String() string {
	switch k {
	case Connected:
		return "connect"
	case Disconnected:
		return "disconnect"
	case Reconnecting:
		return "reconnecting"
	case Message:
		return "message"
	case AuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Event is one item of the transport's FIFO stream.
type Event struct {
	Kind    Kind
	Frame   wire.Frame
	Attempt int
	Err     error
}

// Backoff is an exponential reconnect policy.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int // 0 means retry forever
}

// DefaultBackoff is used when no policy is configured.
var DefaultBackoff = Backoff{
	Initial:    500 * time.Millisecond,
	Max:        15 * time.Second,
	Multiplier: 2,
}

// Delay returns the wait before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	initial, ceiling, mult := b.Initial, b.Max, b.Multiplier
	if initial <= 0 {
		initial = DefaultBackoff.Initial
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoff.Max
	}
	if mult < 1 {
		mult = DefaultBackoff.Multiplier
	}
	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= mult
		if d >= float64(ceiling) {
			return ceiling
		}
	}
	return time.Duration(d)
}
