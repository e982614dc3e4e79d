package service

import (
	"context"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/ledger"
)

// connRunner bridges one membership connection and its engine session: it
// pumps engine lifecycle events into the state machine and outbound
// protocol bytes into transport frames.
type connRunner struct {
	registry  *Registry
	community *Community
	conn      *domain.Connection
	session   ledger.Conn
}

func newConnRunner(registry *Registry, community *Community, conn *domain.Connection, session ledger.Conn) *connRunner {
	return &connRunner{
		registry:  registry,
		community: community,
		conn:      conn,
		session:   session,
	}
}

// start launches the event and outgoing pumps. Called outside the
// community mutex; both pumps may call back into the registry.
func (r *connRunner) start() {
	go r.pumpEvents()
	go r.pumpOutgoing()
}

// stop closes the engine session, which ends both pumps. It must not wait
// for them: the event pump itself triggers removal on terminal events.
func (r *connRunner) stop() {
	_ = r.session.Close()
}

// pumpEvents drives the connection state machine from engine events.
func (r *connRunner) pumpEvents() {
	for ev := range r.session.Events() {
		switch ev.Kind {
		case ledger.EventConnected:
			r.conn.Apply(domain.EventConnected)

		case ledger.EventJoined:
			if _, changed := r.conn.Apply(domain.EventJoined); changed {
				r.registry.onJoined(r.community, r.conn)
			}

		case ledger.EventDisconnected:
			r.closeWith(domain.EventDisconnected, nil)

		case ledger.EventLocalError:
			r.closeWith(domain.EventLocalError, ev.Err)

		case ledger.EventRemoteError:
			r.closeWith(domain.EventRemoteError, ev.Err)
		}
	}

	// The engine ended the stream without a terminal event.
	r.closeWith(domain.EventDisconnected, nil)
}

// closeWith applies a terminal event and, on the first transition to
// closed, removes the connection from its community.
func (r *connRunner) closeWith(ev domain.ConnEvent, cause error) {
	if _, changed := r.conn.Apply(ev); !changed {
		return
	}
	if cause != nil {
		r.registry.logger.Warn("connection closed",
			"team_id", r.conn.TeamID,
			"user_id", r.conn.UserID,
			"event", ev.String(),
			"error", cause)
	}
	r.registry.RemoveConnection(r.conn.TeamID, r.conn.UserID)
}

// pumpOutgoing relays engine protocol bytes to the other members'
// transports.
func (r *connRunner) pumpOutgoing() {
	for msg := range r.session.Outgoing() {
		r.registry.broadcastMembership(r.community, r.conn, msg)
	}
}

// Deliver feeds one inbound membership envelope into the engine session.
func (r *connRunner) Deliver(msg []byte) error {
	return r.session.Deliver(msg)
}

// onJoined runs when a user's membership is first verified: the ledger
// handle may have absorbed new chain links during the join, so the
// serialized form is persisted before the user is treated as authorized.
func (r *Registry) onJoined(c *Community, conn *domain.Connection) {
	if err := r.persistLedger(context.Background(), c); err != nil {
		r.logger.Error("persist ledger after join failed",
			"team_id", conn.TeamID,
			"user_id", conn.UserID,
			"error", err)
	}
	r.logger.Info("user joined",
		"team_id", conn.TeamID,
		"user_id", conn.UserID,
		"connection_id", conn.ID)
}

// persistLedger saves the community's ledger handle back to its record
// and durable storage.
func (r *Registry) persistLedger(ctx context.Context, c *Community) error {
	c.mu.Lock()
	blob, err := c.handle.Save()
	if err != nil {
		c.mu.Unlock()
		return domain.ErrInternalServer.WithCause(err)
	}
	c.record.SetLedger(blob)
	record := c.record.Clone()
	c.mu.Unlock()

	return r.store.PutCommunity(ctx, record)
}

// broadcastMembership wraps outbound engine bytes in a membership frame
// and hands it to every other live member's transport.
func (r *Registry) broadcastMembership(c *Community, source *domain.Connection, msg []byte) {
	frame := Frame{
		Kind:    FrameMembership,
		TeamID:  c.TeamID,
		UserID:  source.UserID,
		Payload: msg,
	}
	for _, transportID := range c.liveTransports(source.TransportID) {
		if r.caster.Send(transportID, frame) {
			r.metrics.FanoutMessages.Inc()
		}
	}
}
