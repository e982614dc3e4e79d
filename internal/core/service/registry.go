package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/ledger"
	"github.com/sigmesh/sigmesh-go/internal/secrets"
	"github.com/sigmesh/sigmesh-go/internal/storage"
	"github.com/sigmesh/sigmesh-go/internal/telemetry/metric"
	"github.com/sigmesh/sigmesh-go/pkg/cmap"
)

// DefaultIdleTTL is how long a community with no connections stays in the
// in-memory registry before eviction.
const DefaultIdleTTL = 300_000 * time.Millisecond

// RegistryConfig configures the community registry.
type RegistryConfig struct {
	// IdleTTL overrides DefaultIdleTTL when positive.
	IdleTTL time.Duration
}

// Registry is the in-memory table of known communities. Entries are
// lazily materialized from durable storage, hold the membership ledger
// handle and the live connection set, and are evicted after sitting idle
// with no connections for the idle TTL.
type Registry struct {
	store   storage.Store
	engine  ledger.Engine
	vault   *secrets.Vault
	caster  Broadcaster
	metrics *metric.Metrics
	logger  *slog.Logger
	idleTTL time.Duration

	communities *cmap.Map[string, *Community]
}

// NewRegistry creates the registry.
func NewRegistry(store storage.Store, engine ledger.Engine, vault *secrets.Vault, caster Broadcaster, metrics *metric.Metrics, logger *slog.Logger, cfg RegistryConfig) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		store:       store,
		engine:      engine,
		vault:       vault,
		caster:      caster,
		metrics:     metrics,
		logger:      logger,
		idleTTL:     idleTTL,
		communities: cmap.New[string, *Community](),
	}
}

// Community is one live registry entry: the community record, its ledger
// handle, and the set of active membership connections.
//
// Goroutines mutate the connection set concurrently (transport handlers,
// engine event pumps, the eviction timer), so all mutable state sits
// behind one mutex.
type Community struct {
	TeamID string

	mu        sync.Mutex
	record    *domain.Community
	handle    ledger.Handle
	conns     map[string]*connRunner
	idleSince int64
	evict     *time.Timer

	// evicted marks an entry the registry has discarded. Callers that
	// looked it up before the discard must not mutate it; they re-fetch
	// and land on the current entry instead.
	evicted bool
}

func newCommunity(record *domain.Community, handle ledger.Handle) *Community {
	return &Community{
		TeamID: record.TeamID,
		record: record,
		handle: handle,
		conns:  make(map[string]*connRunner),
	}
}

// runner returns the user's connection runner, if any.
func (c *Community) runner(userID string) (*connRunner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.conns[userID]
	return r, ok
}

// joinedTransports snapshots the transport IDs of joined members,
// excluding one transport session.
func (c *Community) joinedTransports(exclude string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.conns))
	for _, r := range c.conns {
		if r.conn.TransportID == exclude || !r.conn.IsJoined() {
			continue
		}
		out = append(out, r.conn.TransportID)
	}
	return out
}

// liveTransports snapshots the transport IDs of all non-closed
// connections, excluding one transport session. Membership sync flows to
// peers that are still joining.
func (c *Community) liveTransports(exclude string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.conns))
	for _, r := range c.conns {
		if r.conn.TransportID == exclude || r.conn.IsClosed() {
			continue
		}
		out = append(out, r.conn.TransportID)
	}
	return out
}

// ============================================================================
// Lookup and materialization
// ============================================================================

// Get returns the in-memory entry for teamID, materializing it from
// durable storage on a miss. Returns SM-COMM-4040 when no durable record
// exists.
//
// Concurrent misses for the same community may both load the record; the
// first materialized entry wins and the loser's copy is dropped, which is
// harmless because both came from the same durable row.
func (r *Registry) Get(ctx context.Context, teamID string) (*Community, error) {
	if c, ok := r.communities.Get(teamID); ok {
		return c, nil
	}

	record, err := r.store.GetCommunity(ctx, teamID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrCommunityNotFound.WithDetails("team_id=" + teamID)
	}
	if err != nil {
		return nil, err
	}

	handle, err := r.engine.Load(record.Ledger)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	c, existed := r.communities.GetOrSet(teamID, newCommunity(record, handle))
	if !existed {
		// A freshly loaded entry has no connections yet; it must not
		// pin memory forever if nobody signs in.
		r.armEviction(c)
		r.metrics.Communities.Set(float64(r.communities.Count()))
		r.logger.Debug("community materialized", "team_id", teamID)
	}
	return c, nil
}

// ============================================================================
// Community provisioning
// ============================================================================

// CreateCommunityRequest contains parameters for provisioning a new
// community.
type CreateCommunityRequest struct {
	TeamID      string // Required
	UserID      string // Required, the creating user
	TransportID string // Required, the creator's transport session
	Ledger      []byte // Optional pre-built ledger blob; provisioned when empty
	KeyMaterial []byte // Required server-side key material
}

// Create provisions a brand-new community: validates and seals the key
// material, persists the record, materializes the registry entry, and
// starts the creating user's membership connection.
//
// Provisioning is all or nothing up to the durable write: any failure
// before it leaves no partial community visible, and every cause is
// wrapped under SM-COMM-5000.
func (r *Registry) Create(ctx context.Context, req *CreateCommunityRequest) (*Community, *domain.Connection, error) {
	// 1. Validate required fields.
	if req.TeamID == "" || req.UserID == "" || req.TransportID == "" {
		return nil, nil, domain.ErrMissingArgument.WithDetails("team_id, user_id and transport_id are required")
	}
	if len(req.KeyMaterial) == 0 {
		return nil, nil, domain.ErrKeyMaterialInvalid.WithDetails("key material is required")
	}

	// 2. Reject an existing community, in memory or durable.
	if r.communities.Has(req.TeamID) {
		return nil, nil, domain.ErrCommunityConflict.WithDetails("team_id=" + req.TeamID)
	}
	if _, err := r.store.GetCommunity(ctx, req.TeamID); err == nil {
		return nil, nil, domain.ErrCommunityConflict.WithDetails("team_id=" + req.TeamID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, err
	}

	// 3. Build the ledger handle: deserialize the supplied blob or have
	// the engine provision a fresh chain rooted at the creator.
	var handle ledger.Handle
	var err error
	if len(req.Ledger) > 0 {
		handle, err = r.engine.Load(req.Ledger)
	} else {
		handle, err = r.engine.Provision(req.TeamID, req.UserID, req.KeyMaterial)
	}
	if err != nil {
		return nil, nil, domain.ErrCommunityProvision.WithCause(err)
	}

	blob, err := handle.Save()
	if err != nil {
		return nil, nil, domain.ErrCommunityProvision.WithCause(err)
	}
	record, err := domain.NewCommunity(req.TeamID, blob)
	if err != nil {
		return nil, nil, domain.ErrCommunityProvision.WithCause(err)
	}

	// 4. Seal the server-side key material before anything is visible.
	if err := r.vault.Seal(ctx, req.TeamID, req.KeyMaterial); err != nil {
		return nil, nil, domain.ErrCommunityProvision.WithCause(err)
	}

	// 5. Persist the record; this is the commit point.
	if err := r.store.PutCommunity(ctx, record); err != nil {
		return nil, nil, domain.ErrCommunityProvision.WithCause(err)
	}

	c, existed := r.communities.GetOrSet(req.TeamID, newCommunity(record, handle))
	if !existed {
		r.metrics.Communities.Set(float64(r.communities.Count()))
	}
	r.logger.Info("community created", "team_id", req.TeamID, "creator", req.UserID)

	// 6. Start the creator's connection. The community is already
	// durable at this point; a failure here leaves it intact.
	conn, err := r.StartConnection(ctx, req.TeamID, req.UserID, req.TransportID)
	if err != nil {
		return c, nil, err
	}
	return c, conn, nil
}

// ============================================================================
// Connection lifecycle
// ============================================================================

// StartConnection creates a membership connection for the user, bound to
// the given transport session, and starts its state machine. A prior
// non-closed connection for the same user is a caller error; a closed
// predecessor is replaced.
func (r *Registry) StartConnection(ctx context.Context, teamID, userID, transportID string) (*domain.Connection, error) {
	conn, err := domain.NewConnection(teamID, userID, transportID)
	if err != nil {
		return nil, err
	}

	// The looked-up entry can be evicted between the lookup and the
	// lock; a connection placed on a discarded entry would be invisible
	// to every later request. Re-fetch until the entry is live.
	for {
		c, err := r.Get(ctx, teamID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.evicted {
			c.mu.Unlock()
			continue
		}
		if existing, ok := c.conns[userID]; ok && !existing.conn.IsClosed() {
			c.mu.Unlock()
			return nil, domain.ErrConnectionActive.WithDetails("user_id=" + userID)
		}
		handle := c.handle
		c.mu.Unlock()

		// The engine may do real work opening a session, so it runs
		// outside the community lock. The checks above are repeated
		// once the lock is re-taken.
		session, err := r.engine.Connect(handle, userID)
		if err != nil {
			return nil, domain.ErrInternalServer.WithCause(err)
		}

		c.mu.Lock()
		if c.evicted {
			c.mu.Unlock()
			_ = session.Close()
			continue
		}
		if existing, ok := c.conns[userID]; ok {
			if !existing.conn.IsClosed() {
				c.mu.Unlock()
				_ = session.Close()
				return nil, domain.ErrConnectionActive.WithDetails("user_id=" + userID)
			}
			delete(c.conns, userID)
		}

		runner := newConnRunner(r, c, conn, session)
		c.conns[userID] = runner

		// Any new connection cancels a pending eviction.
		c.idleSince = 0
		if c.evict != nil {
			c.evict.Stop()
			c.evict = nil
		}
		c.mu.Unlock()

		r.metrics.Connections.Inc()
		r.logger.Info("connection started",
			"team_id", teamID,
			"user_id", userID,
			"connection_id", conn.ID)

		runner.start()
		return conn, nil
	}
}

// StopConnection handles an explicit sign-out: the state machine receives
// its stop event and the connection leaves the community. Stopping an
// unknown connection is a no-op, since retried sign-outs must succeed.
func (r *Registry) StopConnection(teamID, userID string) {
	c, ok := r.communities.Get(teamID)
	if !ok {
		return
	}
	runner, ok := c.runner(userID)
	if !ok {
		return
	}
	runner.conn.Apply(domain.EventStop)
	r.RemoveConnection(teamID, userID)
}

// RemoveConnection removes the user's connection from the community and
// arms the idle-eviction timer when the connection set becomes empty.
func (r *Registry) RemoveConnection(teamID, userID string) {
	c, ok := r.communities.Get(teamID)
	if !ok {
		return
	}

	c.mu.Lock()
	runner, ok := c.conns[userID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.conns, userID)
	empty := len(c.conns) == 0
	c.mu.Unlock()

	runner.stop()
	r.metrics.Connections.Dec()
	r.logger.Info("connection removed", "team_id", teamID, "user_id", userID)

	if empty {
		r.armEviction(c)
	}
}

// DeliverMembership routes one inbound membership sync envelope into the
// user's engine session. Unlike the log paths this is open to pending and
// joining connections, because membership verification itself rides on
// these messages.
func (r *Registry) DeliverMembership(ctx context.Context, teamID, userID, transportID string, msg []byte) error {
	c, err := r.Get(ctx, teamID)
	if err != nil {
		return err
	}

	runner, ok := c.runner(userID)
	if !ok || runner.conn.TransportID != transportID || runner.conn.IsClosed() {
		return domain.ErrNotAuthorized
	}

	if err := runner.session.Deliver(msg); err != nil {
		return domain.ErrInternalServer.WithCause(err)
	}

	// The envelope may have extended the chain; persist so an eviction
	// and rehydration cannot lose membership updates.
	if err := r.persistLedger(ctx, c); err != nil {
		r.logger.Error("persist ledger after delivery failed",
			"team_id", teamID,
			"user_id", userID,
			"error", err)
	}
	return nil
}

// ============================================================================
// Idle eviction
// ============================================================================

// armEviction starts the idle clock for a community with no connections.
// A single timer per community; re-arming replaces the previous one.
func (r *Registry) armEviction(c *Community) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evicted || len(c.conns) > 0 {
		return
	}
	c.idleSince = time.Now().UnixMilli()
	if c.evict != nil {
		c.evict.Stop()
	}
	c.evict = time.AfterFunc(r.idleTTL, func() { r.evictIfIdle(c) })
}

// evictIfIdle drops the community from the registry if it is still idle
// when its timer fires. A connection that arrived and left meanwhile has
// re-armed a fresh timer, and idleSince guards against the stale one.
func (r *Registry) evictIfIdle(c *Community) {
	c.mu.Lock()
	if c.evicted || len(c.conns) > 0 || c.idleSince == 0 {
		c.mu.Unlock()
		return
	}
	if time.Now().UnixMilli()-c.idleSince < r.idleTTL.Milliseconds() {
		c.mu.Unlock()
		return
	}
	c.evict = nil
	// Marked before the map delete so a sign-in racing the eviction
	// sees the discard while holding the lock and re-fetches.
	c.evicted = true
	c.mu.Unlock()

	r.communities.Delete(c.TeamID)
	r.metrics.Communities.Set(float64(r.communities.Count()))
	r.logger.Info("idle community evicted", "team_id", c.TeamID)
}

// ============================================================================
// Introspection and shutdown
// ============================================================================

// UserStatus is one user's connection state in a status snapshot.
type UserStatus struct {
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	ConnectedAt int64  `json:"connected_at"`
}

// CommunityStatus is a point-in-time snapshot of one community.
type CommunityStatus struct {
	TeamID          string       `json:"team_id"`
	ConnectionCount int          `json:"connection_count"`
	IdleSince       int64        `json:"idle_since,omitempty"`
	Users           []UserStatus `json:"users,omitempty"`
}

// Status returns a snapshot of the community's connection set.
func (r *Registry) Status(ctx context.Context, teamID string) (*CommunityStatus, error) {
	c, err := r.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := &CommunityStatus{
		TeamID:          c.TeamID,
		ConnectionCount: len(c.conns),
		IdleSince:       c.idleSince,
	}
	for userID, runner := range c.conns {
		st.Users = append(st.Users, UserStatus{
			UserID:      userID,
			Status:      runner.conn.Status().String(),
			ConnectedAt: runner.conn.CreatedAt,
		})
	}
	return st, nil
}

// CommunityCount returns the number of materialized communities.
func (r *Registry) CommunityCount() int {
	return r.communities.Count()
}

// Stop tears down every connection and timer; used during shutdown.
func (r *Registry) Stop() {
	r.communities.Range(func(_ string, c *Community) bool {
		c.mu.Lock()
		runners := make([]*connRunner, 0, len(c.conns))
		for _, runner := range c.conns {
			runners = append(runners, runner)
		}
		c.conns = make(map[string]*connRunner)
		if c.evict != nil {
			c.evict.Stop()
			c.evict = nil
		}
		c.mu.Unlock()

		for _, runner := range runners {
			runner.conn.Apply(domain.EventStop)
			runner.stop()
		}
		return true
	})
	r.communities.Clear()
	r.logger.Info("registry stopped")
}
