package bus

import "time"

// Event kinds published by the engine.
const (
	KindStatusChanged       = "chat.status_changed"
	KindMessage             = "chat.message"
	KindLocationUnavailable = "chat.location_unavailable"
	KindPresenceUpdated     = "presence.updated"
	KindRequestAccepted     = "home.request_accepted"
	KindNearbyUpdated       = "home.nearby_updated"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
