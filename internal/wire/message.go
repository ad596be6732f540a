package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/room"
)

// ErrUnknownType is returned for messages whose type discriminant is not recognised.
var ErrUnknownType = errors.New("unknown message type")

// MessagePayload is the flat wire shape shared by sendMessage, shareLocation,
// receiveMessage, receiveLocation and the history endpoint.
type MessagePayload struct {
	ID        string    `json:"id,omitempty"`
	MongoID   string    `json:"_id,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	Sender    string    `json:"sender"`
	Receiver  *string   `json:"receiver"`
	Text      string    `json:"text,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	Type      string    `json:"type,omitempty"`
}

// ToMessage decodes the payload into the message union. A payload without a
// type but with a text is treated as text, matching older servers.
func (p MessagePayload) ToMessage() (message.Message, error) {
	h := message.Header{
		ID:        p.ID,
		Room:      room.ID(p.RoomID),
		Sender:    p.Sender,
		Timestamp: time.Time(p.Timestamp),
	}
	if h.ID == "" {
		h.ID = p.MongoID
	}
	if h.Room == "" {
		h.Room = room.ID(p.ChatID)
	}
	if p.Receiver != nil {
		h.Receiver = *p.Receiver
	}

	switch message.Kind(p.Type) {
	case message.KindText, "":
		return message.Text{Header: h, Body: p.Text}, nil
	case message.KindLocation:
		if p.Latitude == nil || p.Longitude == nil {
			return nil, fmt.Errorf("location message %q missing coordinates", h.ID)
		}
		return message.Location{Header: h, Latitude: *p.Latitude, Longitude: *p.Longitude}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}
}

// FromMessage encodes a message into its wire payload.
func FromMessage(m message.Message) MessagePayload {
	h := m.Meta()
	p := MessagePayload{
		ID:        h.ID,
		RoomID:    string(h.Room),
		Sender:    h.Sender,
		Timestamp: Timestamp(h.Timestamp),
		Type:      string(m.Kind()),
	}
	if h.Receiver != "" {
		receiver := h.Receiver
		p.Receiver = &receiver
	}
	switch v := m.(type) {
	case message.Text:
		p.Text = v.Body
	case message.Location:
		lat, lon := v.Latitude, v.Longitude
		p.Latitude, p.Longitude = &lat, &lon
	}
	return p
}

// NewText builds an outbound text message with a fresh id and the current time.
func NewText(roomID room.ID, sender, receiver, body string) message.Text {
	return message.Text{Header: newHeader(roomID, sender, receiver), Body: body}
}

// NewLocation builds an outbound location share with a fresh id and the current time.
func NewLocation(roomID room.ID, sender, receiver string, lat, lon float64) message.Location {
	return message.Location{Header: newHeader(roomID, sender, receiver), Latitude: lat, Longitude: lon}
}

func newHeader(roomID room.ID, sender, receiver string) message.Header {
	return message.Header{
		ID:        uuid.New().String(),
		Room:      roomID,
		Sender:    sender,
		Receiver:  receiver,
		Timestamp: time.Now().UTC(),
	}
}

// DecodeMessage decodes raw JSON into a message.
func DecodeMessage(raw json.RawMessage) (message.Message, error) {
	var p MessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return p.ToMessage()
}

// DecodeMessages decodes a JSON array of messages, preserving order.
func DecodeMessages(raw []byte) ([]message.Message, error) {
	var ps []MessagePayload
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]message.Message, 0, len(ps))
	for i, p := range ps {
		m, err := p.ToMessage()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Timestamp accepts RFC 3339 strings or epoch milliseconds and encodes as RFC 3339.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	t := time.Time(ts)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*ts = Timestamp{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		*ts = Timestamp(t)
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", b, err)
	}
	*ts = Timestamp(time.UnixMilli(int64(ms)).UTC())
	return nil
}
