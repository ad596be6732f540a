package message

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/helpline/internal/room"
)

// Kind discriminates the message variants.
type Kind string

const (
	KindText     Kind = "text"
	KindLocation Kind = "location"
)

// Header carries the fields every message variant has.
type Header struct {
	ID        string
	Room      room.ID
	Sender    string
	Receiver  string // optional, not used for filtering
	Timestamp time.Time
}

// Meta returns the header. Promoted to the variants that embed it.
func (h Header) Meta() Header { return h }

// Message is a chat timeline entry: either Text or Location.
type Message interface {
	Meta() Header
	Kind() Kind
	message()
}

// Text is a plain text message.
type Text struct {
	Header
	Body string
}

// Kind implements Message.
func (Text) Kind() Kind { return KindText }
func (Text) message()   {}

// Location is a one-shot location share.
type Location struct {
	Header
	Latitude  float64
	Longitude float64
}

// Kind implements Message.
func (Location) Kind() Kind { return KindLocation }
func (Location) message()   {}

// MapsURL returns a link that opens the shared coordinates in a map.
func (l Location) MapsURL() string {
	return "https://www.google.com/maps?q=" + coord(l.Latitude) + "," + coord(l.Longitude)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Preview returns a single-line description of a message for lists and logs.
func Preview(m Message) string {
	switch v := m.(type) {
	case Text:
		return v.Body
	case Location:
		return fmt.Sprintf("shared location (%.5f, %.5f)", v.Latitude, v.Longitude)
	default:
		return ""
	}
}
