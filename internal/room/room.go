package room

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the two participant ids of a room id.
const Separator = "_"

var (
	// ErrNotAParticipant is returned when an id is not encoded in a room id.
	ErrNotAParticipant = errors.New("not a participant of this room")
	// ErrMalformedRoom is returned when a room id cannot be split into two participants.
	ErrMalformedRoom = errors.New("malformed room id")
	// ErrInvalidParticipant is returned for participant ids that cannot form a room id.
	ErrInvalidParticipant = errors.New("invalid participant id")
)

// ID is the canonical identifier of a two-party chat.
type ID string

func (id ID) String() string { return string(id) }

// ValidateParticipant checks the participant id construction contract:
// non-empty and free of the separator.
func ValidateParticipant(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty", ErrInvalidParticipant)
	}
	if strings.Contains(p, Separator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidParticipant, p, Separator)
	}
	return nil
}

// Canonical derives the room id for a pair of participants. The result does
// not depend on argument order.
func Canonical(a, b string) ID {
	if b < a {
		a, b = b, a
	}
	return ID(a + Separator + b)
}

// Parse decodes a room id candidate into its two participant ids, in the
// order they appear.
func Parse(candidate string) (string, string, error) {
	a, b, ok := strings.Cut(candidate, Separator)
	if !ok || a == "" || b == "" || strings.Contains(b, Separator) {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedRoom, candidate)
	}
	return a, b, nil
}

// Normalize returns the canonical form of a candidate room id. Applying it to
// its own output is a no-op.
func Normalize(candidate string) (ID, error) {
	a, b, err := Parse(candidate)
	if err != nil {
		return "", err
	}
	return Canonical(a, b), nil
}

// IsCanonical reports whether candidate is already in canonical form and
// self is one of its participants.
func IsCanonical(candidate, self string) bool {
	a, b, err := Parse(candidate)
	if err != nil {
		return false
	}
	if self != a && self != b {
		return false
	}
	return string(Canonical(a, b)) == candidate
}

// OtherParticipant returns the participant of id that is not self.
func OtherParticipant(id ID, self string) (string, error) {
	a, b, err := Parse(string(id))
	if err != nil {
		return "", err
	}
	switch self {
	case a:
		return b, nil
	case b:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q in %q", ErrNotAParticipant, self, id)
	}
}

// Participants returns both participants of id in canonical order.
func Participants(id ID) ([2]string, error) {
	a, b, err := Parse(string(id))
	if err != nil {
		return [2]string{}, err
	}
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}, nil
}
