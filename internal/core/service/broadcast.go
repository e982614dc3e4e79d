package service

// FrameKind classifies a server-initiated frame.
type FrameKind string

const (
	// FrameEntry carries a newly accepted log entry to other members.
	FrameEntry FrameKind = "entry"

	// FrameMembership carries membership protocol bytes between peers.
	FrameMembership FrameKind = "membership"
)

// Frame is one server-initiated message bound for a transport session.
type Frame struct {
	Kind        FrameKind
	TeamID      string
	UserID      string // source user, set on membership frames
	ContentHash string
	PartitionID string
	Payload     []byte
}

// Broadcaster fans frames out to attached transport sessions. Send must
// not block: fan-out is fire and forget relative to the submitter's
// acknowledgment.
type Broadcaster interface {
	// Send queues one frame for the transport session and reports
	// whether it was queued. An unattached session or a full queue
	// reads false; only queued frames count as fanned out.
	Send(transportID string, frame Frame) bool
}
