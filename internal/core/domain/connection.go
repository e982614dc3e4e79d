package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Connection constraints.
const (
	MaxTeamIDLength      = 128
	MaxUserIDLength      = 128
	MaxTransportIDLength = 128

	// ConnectionIDPrefix is the prefix for membership connection IDs.
	ConnectionIDPrefix = "smcn-"
)

// ConnStatus is the lifecycle status of a membership connection.
type ConnStatus uint8

const (
	// StatusPending means sign-in has started but the membership engine has
	// not yet connected.
	StatusPending ConnStatus = iota

	// StatusJoining means the engine is connected and membership
	// verification is in progress.
	StatusJoining

	// StatusJoined means the user holds a verified role on the community's
	// membership ledger and synchronization is active.
	StatusJoined

	// StatusClosed means the connection was rejected, explicitly stopped,
	// or the transport disconnected. Closed connections are immutable; a
	// fresh sign-in produces a new instance.
	StatusClosed
)

// String returns the wire name of the status.
func (s ConnStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusJoining:
		return "joining"
	case StatusJoined:
		return "joined"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnEvent is an event raised by the membership engine or by an explicit
// stop request, driving the connection state machine.
type ConnEvent uint8

const (
	// EventConnected is raised when the engine establishes its session.
	EventConnected ConnEvent = iota

	// EventJoined is raised when the engine verifies the user's membership.
	EventJoined

	// EventDisconnected is raised when the transport drops.
	EventDisconnected

	// EventLocalError is raised on a local engine failure.
	EventLocalError

	// EventRemoteError is raised on a peer-reported engine failure.
	EventRemoteError

	// EventStop is raised by an explicit sign-out.
	EventStop
)

// String returns the event name for logging.
func (e ConnEvent) String() string {
	switch e {
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
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Connection is the per-user membership connection: the bridge between one
// transport session and the community's membership engine.
//
// Exactly one non-closed connection may exist per (TeamID, UserID). The
// status field is guarded by a mutex because transport goroutines and the
// engine event pump mutate it concurrently.
type Connection struct {
	// ID is the unique identifier for this instantiation.
	// Format: smcn-{ulid_lowercase}, 31 characters total.
	ID string `json:"id"`

	// TeamID identifies the owning community.
	TeamID string `json:"team_id"`

	// UserID identifies the signed-in user.
	UserID string `json:"user_id"`

	// TransportID is the single transport session authorized to drive
	// this connection. Requests arriving over any other transport are
	// rejected.
	TransportID string `json:"transport_id"`

	// CreatedAt is the creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	mu              sync.Mutex
	status          ConnStatus
	statusChangedAt int64
}

// NewConnection creates a pending connection bound to the given transport.
func NewConnection(teamID, userID, transportID string) (*Connection, error) {
	id, err := GenerateConnectionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	c := &Connection{
		ID:              id,
		TeamID:          teamID,
		UserID:          userID,
		TransportID:     transportID,
		CreatedAt:       now,
		status:          StatusPending,
		statusChangedAt: now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// GenerateConnectionID generates a new connection ID using ULID.
// Format: smcn-{ulid_lowercase}, 31 characters total.
func GenerateConnectionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return ConnectionIDPrefix + strings.ToLower(id.String()), nil
}

// Validate validates the connection fields against constraints.
func (c *Connection) Validate() error {
	var violations []string

	if c.TeamID == "" {
		violations = append(violations, "team_id is required")
	}
	if c.UserID == "" {
		violations = append(violations, "user_id is required")
	}
	if c.TransportID == "" {
		violations = append(violations, "transport_id is required")
	}
	if len(c.TeamID) > MaxTeamIDLength {
		violations = append(violations, "team_id exceeds 128 characters")
	}
	if len(c.UserID) > MaxUserIDLength {
		violations = append(violations, "user_id exceeds 128 characters")
	}
	if len(c.TransportID) > MaxTransportIDLength {
		violations = append(violations, "transport_id exceeds 128 characters")
	}

	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Status returns the current lifecycle status.
func (c *Connection) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StatusChangedAt returns the timestamp of the last transition
// (Unix milliseconds).
func (c *Connection) StatusChangedAt() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusChangedAt
}

// IsJoined reports whether the user's membership is verified and sync is
// active.
func (c *Connection) IsJoined() bool {
	return c.Status() == StatusJoined
}

// IsClosed reports whether the connection has reached its terminal state.
func (c *Connection) IsClosed() bool {
	return c.Status() == StatusClosed
}

// Apply runs one event through the state machine and returns the resulting
// status plus whether a transition occurred.
//
// Legal transitions:
//
//	pending --connected--> joining
//	joining --joined-----> joined
//	any non-closed --disconnected|local_error|remote_error|stop--> closed
//
// Events that do not match the current state are ignored rather than
// rejected: the membership engine may emit duplicate or late events during
// teardown, and re-delivery must be harmless. Once closed, the connection
// never transitions again.
func (c *Connection) Apply(ev ConnEvent) (ConnStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusClosed {
		return c.status, false
	}

	next := c.status
	switch ev {
	case EventConnected:
		if c.status == StatusPending {
			next = StatusJoining
		}
	case EventJoined:
		if c.status == StatusJoining {
			next = StatusJoined
		}
	case EventDisconnected, EventLocalError, EventRemoteError, EventStop:
		next = StatusClosed
	}

	if next == c.status {
		return c.status, false
	}
	c.status = next
	c.statusChangedAt = time.Now().UnixMilli()
	return c.status, true
}

// IsValidConnectionID checks if a string is a valid connection ID format.
func IsValidConnectionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, ConnectionIDPrefix) {
		return false
	}
	// smcn- (5) + ULID (26) = 31 characters
	if len(id) != 31 {
		return false
	}
	ulidPart := strings.ToUpper(id[len(ConnectionIDPrefix):])
	_, err := ulid.Parse(ulidPart)
	return err == nil
}
