package message

// Timeline is an append-only, arrival-ordered message sequence. Messages
// with an id already present are dropped; messages without an id are always
// appended. Not safe for concurrent use.
type Timeline struct {
	items []Message
	seen  map[string]struct{}
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

// Append adds m to the end of the timeline. Returns false if m was a duplicate.
func (t *Timeline) Append(m Message) bool {
	if id := m.Meta().ID; id != "" {
		if _, dup := t.seen[id]; dup {
			return false
		}
		t.seen[id] = struct{}{}
	}
	t.items = append(t.items, m)
	return true
}

// Has reports whether a message with the given id was applied.
func (t *Timeline) Has(id string) bool {
	_, ok := t.seen[id]
	return ok
}

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.items) }

// Items returns a copy of the entries in order.
func (t *Timeline) Items() []Message {
	out := make([]Message, len(t.items))
	copy(out, t.items)
	return out
}
