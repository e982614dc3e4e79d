package ledger

// EventKind classifies a lifecycle event raised by the membership engine
// for one connection session.
type EventKind uint8

const (
	// EventConnected fires when the engine establishes the session.
	EventConnected EventKind = iota

	// EventJoined fires when the user's membership is verified against
	// the ledger.
	EventJoined

	// EventDisconnected fires when the session ends normally.
	EventDisconnected

	// EventLocalError fires on a local engine failure.
	EventLocalError

	// EventRemoteError fires on a peer-reported protocol failure.
	EventRemoteError
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventJoined:
		return "joined"
	case EventDisconnected:
		return "disconnected"
	case EventLocalError:
		return "local_error"
	case EventRemoteError:
		return "remote_error"
	default:
		return "unknown"
	}
}

// Event is one lifecycle event for a connection session. Err is set for
// the error kinds.
type Event struct {
	Kind EventKind
	Err  error
}

// Handle is one loaded, in-memory membership ledger. Handles are owned
// exclusively by their community's registry entry; callers must not share
// them across communities.
type Handle interface {
	// Save serializes the ledger for durable storage.
	Save() ([]byte, error)

	// HasRole reports whether the user holds a verified role on the
	// ledger.
	HasRole(userID string) bool
}

// Conn is one engine-side session for a signing-in user: the counterpart
// of a membership connection.
type Conn interface {
	// Events yields lifecycle events in order until the session ends,
	// then the channel is closed.
	Events() <-chan Event

	// Deliver feeds one inbound protocol message into the engine.
	Deliver(msg []byte) error

	// Outgoing yields protocol bytes the engine wants relayed to peers.
	// The channel is closed when the session ends.
	Outgoing() <-chan []byte

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Engine loads and provisions membership ledgers and opens connection
// sessions against them.
type Engine interface {
	// Load materializes a handle from a serialized ledger blob.
	Load(blob []byte) (Handle, error)

	// Provision creates a brand-new ledger for a community, rooted at
	// the creating user, from the supplied key material.
	Provision(teamID, creatorID string, keyMaterial []byte) (Handle, error)

	// Connect opens a session for the given user against the handle.
	// Implementations may block on engine I/O; the registry calls it
	// without holding the community's lock.
	Connect(h Handle, userID string) (Conn, error)
}
