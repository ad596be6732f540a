package store

// Keys of the local_state table.
const (
	KeyToken    = "token"
	KeyUser     = "user"
	KeyLastChat = "lastChat"
)

// LocalState is the persisted identity of the signed-in user.
type LocalState struct {
	Token    string
	User     string // JSON-encoded user
	LastChat string
}

// Handoff roles.
const (
	RoleAccepter  = "accepter"
	RoleRequester = "requester"
)

// Handoff records that a request-to-chat handoff happened for a room.
type Handoff struct {
	SelfID    string
	RoomID    string
	PeerID    string
	PeerName  string
	RequestID string
	Role      string
	CreatedAt int64
	UpdatedAt int64
}
