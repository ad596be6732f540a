package wire

import "encoding/json"

// Frame is the envelope of every push channel text frame, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client to server events.
const (
	EventJoinRoom      = "joinRoom"
	EventSendMessage   = "sendMessage"
	EventShareLocation = "shareLocation"
)

// Server to client events.
const (
	EventOnlineUsers     = "onlineUsers"
	EventReceiveMessage  = "receiveMessage"
	EventReceiveLocation = "receiveLocation"
	EventRequestAccepted = "requestAccepted"
	EventError           = "error"
)

// NewFrame marshals data into a frame for the given event.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// Accepted is the requestAccepted payload. Older servers send chatId.
type Accepted struct {
	RoomID string `json:"roomId,omitempty"`
	ChatID string `json:"chatId,omitempty"`
}

// Room returns whichever room field the server filled in.
func (a Accepted) Room() string {
	if a.RoomID != "" {
		return a.RoomID
	}
	return a.ChatID
}

// ErrorData is a server-reported error on the push channel.
type ErrorData struct {
	Message string `json:"message"`
}
