package relay

import (
	"log/slog"
	"sync"

	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/pkg/cmap"
)

// DefaultQueueSize bounds each session's pending frame queue.
const DefaultQueueSize = 64

// Hub routes frames to attached transport sessions. It implements
// service.Broadcaster.
type Hub struct {
	logger    *slog.Logger
	queueSize int
	sessions  *cmap.Map[string, *session]
}

type session struct {
	frames chan service.Frame
	done   chan struct{}

	closeOnce sync.Once
}

// close is idempotent: replacement, detach, and hub shutdown can race.
func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// NewHub creates the hub.
func NewHub(queueSize int, logger *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger,
		queueSize: queueSize,
		sessions:  cmap.New[string, *session](),
	}
}

// Attach registers a transport session and returns its frame stream plus
// a detach function. Attaching an ID that is already attached replaces
// the previous session; its stream is closed.
func (h *Hub) Attach(transportID string) (<-chan service.Frame, func()) {
	s := &session{
		frames: make(chan service.Frame, h.queueSize),
		done:   make(chan struct{}),
	}

	if prev, ok := h.sessions.Get(transportID); ok {
		prev.close()
	}
	h.sessions.Set(transportID, s)
	h.logger.Debug("transport attached", "transport_id", transportID)

	detach := func() {
		// Only remove the session this attach created; a replacement
		// must not be torn down by the loser's deferred detach.
		if cur, ok := h.sessions.Get(transportID); ok && cur == s {
			h.sessions.Delete(transportID)
		}
		s.close()
		h.logger.Debug("transport detached", "transport_id", transportID)
	}
	return s.frames, detach
}

// Send queues one frame for the transport session and reports whether
// it was queued. A full queue drops the frame without blocking; the
// pull path covers the gap.
func (h *Hub) Send(transportID string, frame service.Frame) bool {
	s, ok := h.sessions.Get(transportID)
	if !ok {
		return false
	}
	select {
	case s.frames <- frame:
		return true
	case <-s.done:
		return false
	default:
		h.logger.Warn("frame dropped, session queue full",
			"transport_id", transportID,
			"kind", string(frame.Kind),
			"team_id", frame.TeamID)
		return false
	}
}

// Attached reports whether a transport session is currently attached.
func (h *Hub) Attached(transportID string) bool {
	return h.sessions.Has(transportID)
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	return h.sessions.Count()
}

// Close detaches every session.
func (h *Hub) Close() {
	h.sessions.Range(func(id string, s *session) bool {
		h.sessions.Delete(id)
		s.close()
		return true
	})
}
