package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// StaticEngine is a deterministic, non-cryptographic Engine implementation.
// It models the ledger as a plain membership roster so the server can be
// exercised end to end without the real verification engine. Production
// deployments replace it via the Engine interface.
type StaticEngine struct{}

// NewStaticEngine creates a StaticEngine.
func NewStaticEngine() *StaticEngine {
	return &StaticEngine{}
}

// chainDoc is the serialized form a StaticEngine ledger takes.
type chainDoc struct {
	TeamID  string   `json:"team_id"`
	Members []string `json:"members"`
}

// rosterOp is the protocol message format StaticEngine relays.
type rosterOp struct {
	Op     string `json:"op"`
	UserID string `json:"user_id"`
}

// Load materializes a handle from a serialized roster document.
func (e *StaticEngine) Load(blob []byte) (Handle, error) {
	var doc chainDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger blob: %w", err)
	}
	if doc.TeamID == "" {
		return nil, errors.New("ledger blob missing team id")
	}

	h := &staticHandle{doc: doc, members: make(map[string]struct{}, len(doc.Members))}
	for _, m := range doc.Members {
		h.members[m] = struct{}{}
	}
	return h, nil
}

// Provision creates a fresh roster rooted at the creating user.
func (e *StaticEngine) Provision(teamID, creatorID string, keyMaterial []byte) (Handle, error) {
	if teamID == "" || creatorID == "" {
		return nil, errors.New("team id and creator id are required")
	}
	if len(keyMaterial) == 0 {
		return nil, errors.New("key material is required")
	}

	return &staticHandle{
		doc:     chainDoc{TeamID: teamID, Members: []string{creatorID}},
		members: map[string]struct{}{creatorID: {}},
	}, nil
}

// Connect opens a session for the user. The session immediately reports
// connected, then joined when the user is on the roster or a remote error
// when not.
func (e *StaticEngine) Connect(h Handle, userID string) (Conn, error) {
	sh, ok := h.(*staticHandle)
	if !ok {
		return nil, errors.New("handle was not produced by this engine")
	}

	c := &staticConn{
		handle: sh,
		userID: userID,
		events: make(chan Event, 4),
		out:    make(chan []byte, 16),
	}

	c.events <- Event{Kind: EventConnected}
	if sh.HasRole(userID) {
		c.events <- Event{Kind: EventJoined}
	} else {
		c.events <- Event{Kind: EventRemoteError, Err: fmt.Errorf("user %s holds no role", userID)}
		c.Close()
	}
	return c, nil
}

type staticHandle struct {
	mu      sync.Mutex
	doc     chainDoc
	members map[string]struct{}
}

// Save serializes the roster document.
func (h *staticHandle) Save() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.Marshal(h.doc)
}

// HasRole reports roster membership.
func (h *staticHandle) HasRole(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.members[userID]
	return ok
}

func (h *staticHandle) addMember(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[userID]; ok {
		return
	}
	h.members[userID] = struct{}{}
	h.doc.Members = append(h.doc.Members, userID)
}

type staticConn struct {
	handle *staticHandle
	userID string
	events chan Event
	out    chan []byte

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (c *staticConn) Events() <-chan Event {
	return c.events
}

// Deliver applies one roster operation and relays it onward.
func (c *staticConn) Deliver(msg []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("session closed")
	}
	c.mu.Unlock()

	var op rosterOp
	if err := json.Unmarshal(msg, &op); err != nil {
		return fmt.Errorf("decode roster op: %w", err)
	}
	if op.Op == "add" && op.UserID != "" {
		c.handle.addMember(op.UserID)
	}

	// Relay the op so peers converge on the same roster.
	select {
	case c.out <- msg:
	default:
		// Slow consumer; the op is already applied locally.
	}
	return nil
}

func (c *staticConn) Outgoing() <-chan []byte {
	return c.out
}

// Close ends the session. Safe to call more than once.
func (c *staticConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.events)
		close(c.out)
	})
	return nil
}
