package sync

import (
	"github.com/matheus3301/helpline/internal/message"
	"go.uber.org/zap"
)

// Reconciler merges the one-shot history fetch with the live push stream
// into a single timeline. Live messages that arrive before history resolves
// are held back, then applied after the history entries, so the timeline is
// always history-then-live with each id applied once.
//
// A Reconciler is owned by a single goroutine.
type Reconciler struct {
	timeline *message.Timeline
	pending  []message.Message
	resolved bool
	logger   *zap.Logger
}

// NewReconciler creates a reconciler with an empty timeline.
func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{timeline: message.NewTimeline(), logger: logger}
}

// Live accepts a pushed message. It returns the message in a one-element
// slice when it was applied, or nil when it was buffered or a duplicate.
func (r *Reconciler) Live(m message.Message) []message.Message {
	if !r.resolved {
		r.pending = append(r.pending, m)
		return nil
	}
	if !r.timeline.Append(m) {
		r.logger.Debug("dropping duplicate live message", zap.String("msg_id", m.Meta().ID))
		return nil
	}
	return []message.Message{m}
}

// Resolve applies history followed by any buffered live messages and returns
// everything newly applied, in order. A nil history (fetch failed) resolves
// to an empty prefix. Only the first call has an effect.
func (r *Reconciler) Resolve(history []message.Message) []message.Message {
	if r.resolved {
		return nil
	}
	r.resolved = true

	applied := make([]message.Message, 0, len(history)+len(r.pending))
	dups := 0
	for _, batch := range [][]message.Message{history, r.pending} {
		for _, m := range batch {
			if r.timeline.Append(m) {
				applied = append(applied, m)
			} else {
				dups++
			}
		}
	}
	r.logger.Debug("history reconciled",
		zap.Int("history", len(history)),
		zap.Int("buffered", len(r.pending)),
		zap.Int("duplicates", dups))
	r.pending = nil
	return applied
}

// Resolved reports whether history has been applied.
func (r *Reconciler) Resolved() bool { return r.resolved }

// Pending returns the number of live messages waiting on history.
func (r *Reconciler) Pending() int { return len(r.pending) }

// Items returns the reconciled timeline entries in order.
func (r *Reconciler) Items() []message.Message { return r.timeline.Items() }
