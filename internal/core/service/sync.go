package service

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/storage"
	"github.com/sigmesh/sigmesh-go/internal/telemetry/metric"
	"github.com/sigmesh/sigmesh-go/pkg/cmap"
)

// perEntryOverhead approximates the framing cost one entry adds to a
// response beyond its payload bytes (envelope fields, encoding).
const perEntryOverhead = 64

// SyncConfig tunes the log replication paths.
type SyncConfig struct {
	// MaxMessageSize is the transport's hard message cap in bytes.
	MaxMessageSize int

	// ByteBudgetFraction of MaxMessageSize is usable for entry payloads
	// in one pull response; the remainder absorbs framing.
	ByteBudgetFraction float64

	// PageSize is the internal storage scan granularity.
	PageSize int

	// SubmitRate and SubmitBurst cap submissions per connection.
	SubmitRate  rate.Limit
	SubmitBurst int
}

// DefaultSyncConfig returns production defaults.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxMessageSize:     1_000_000,
		ByteBudgetFraction: 0.8,
		PageSize:           storage.DefaultPageSize,
		SubmitRate:         rate.Limit(50),
		SubmitBurst:        100,
	}
}

// SyncService runs the log replication paths: permission-gated
// idempotent writes with fan-out, and byte-budgeted paginated reads.
type SyncService struct {
	registry *Registry
	logs     storage.LogStore
	verifier AuthorVerifier
	caster   Broadcaster
	metrics  *metric.Metrics
	logger   *slog.Logger
	cfg      SyncConfig

	// limiters is keyed by team_id/user_id; entries are dropped with the
	// community, not individually, since the key space is bounded by the
	// live connection set.
	limiters *cmap.Map[string, *rate.Limiter]
}

// NewSyncService creates the sync service.
func NewSyncService(registry *Registry, logs storage.LogStore, verifier AuthorVerifier, caster Broadcaster, metrics *metric.Metrics, logger *slog.Logger, cfg SyncConfig) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultSyncConfig()
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.ByteBudgetFraction <= 0 || cfg.ByteBudgetFraction > 1 {
		cfg.ByteBudgetFraction = def.ByteBudgetFraction
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.SubmitRate <= 0 {
		cfg.SubmitRate = def.SubmitRate
	}
	if cfg.SubmitBurst <= 0 {
		cfg.SubmitBurst = def.SubmitBurst
	}
	return &SyncService{
		registry: registry,
		logs:     logs,
		verifier: verifier,
		caster:   caster,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		limiters: cmap.New[string, *rate.Limiter](),
	}
}

// authorize gates a log operation on the caller's membership connection:
// it must exist, belong to the caller's transport session, and have
// reached the joined state.
func (s *SyncService) authorize(ctx context.Context, teamID, userID, transportID string) (*Community, error) {
	// 1. The community must exist.
	c, err := s.registry.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	// 2. The caller needs a connection on this exact transport session.
	// Wrong transport and no connection read the same to the caller.
	runner, ok := c.runner(userID)
	if !ok || runner.conn.TransportID != transportID {
		return nil, domain.ErrNotAuthorized
	}

	// 3. Membership verification still in flight is retryable.
	switch runner.conn.Status() {
	case domain.StatusJoined:
		return c, nil
	case domain.StatusPending, domain.StatusJoining:
		return nil, domain.ErrAuthPending
	default:
		return nil, domain.ErrNotAuthorized
	}
}

// ============================================================================
// Submit
// ============================================================================

// SubmitEntryRequest contains parameters for appending one log entry.
type SubmitEntryRequest struct {
	TeamID      string // Required
	UserID      string // Required
	TransportID string // Required
	ContentHash string // Required, hex sha256 of Entry
	PartitionID string // Optional sub-log
	Entry       []byte // Required signed payload
}

// SubmitEntryResponse reports the stored entry, including the
// server-assigned receive time (the stored one, for duplicates).
type SubmitEntryResponse struct {
	Outcome storage.InsertOutcome
	Entry   *domain.LogEntry
}

// Submit appends one entry to the community log after membership and
// signature checks, then fans it out to the other joined members.
// Resubmitting an already stored entry succeeds without side effects.
func (s *SyncService) Submit(ctx context.Context, req *SubmitEntryRequest) (*SubmitEntryResponse, error) {
	// 1. The caller must be a joined member on this transport.
	c, err := s.authorize(ctx, req.TeamID, req.UserID, req.TransportID)
	if err != nil {
		return nil, err
	}

	// 2. Per-connection rate limit.
	key := req.TeamID + "/" + req.UserID
	limiter, _ := s.limiters.GetOrSet(key, rate.NewLimiter(s.cfg.SubmitRate, s.cfg.SubmitBurst))
	if !limiter.Allow() {
		return nil, domain.ErrRateLimited
	}

	// 3. The payload must carry a signature binding it to the caller.
	if err := s.verifier.VerifyAuthor(req.Entry, req.UserID); err != nil {
		return nil, err
	}

	// 4. Build and validate the row. The content hash doubles as the
	// entry's identity, which is what makes retries idempotent.
	if req.ContentHash != domain.ContentHash(req.Entry) {
		return nil, domain.ErrEntryValidation.WithDetails("content_hash does not match entry bytes")
	}
	if len(req.Entry) > s.cfg.MaxMessageSize {
		return nil, domain.ErrEntryValidation.WithDetails("entry exceeds maximum message size")
	}
	entry, err := domain.NewLogEntry(req.TeamID, req.ContentHash, req.PartitionID, req.Entry)
	if err != nil {
		return nil, err
	}

	// 5. Durable idempotent insert; ReceivedAt comes back assigned.
	outcome, err := s.logs.Insert(ctx, entry)
	if err != nil {
		return nil, err
	}

	if outcome == storage.OutcomeDuplicate {
		s.metrics.EntriesDuplicate.Inc()
		return &SubmitEntryResponse{Outcome: outcome, Entry: entry}, nil
	}
	s.metrics.EntriesSubmitted.Inc()
	s.logger.Debug("entry accepted",
		"team_id", req.TeamID,
		"user_id", req.UserID,
		"content_hash", entry.ID,
		"partition_id", req.PartitionID)

	// 6. Fan out to the other joined members' transports. This happens
	// off the request path; the submitter's ack never waits on peers.
	go s.fanOut(c, req.TransportID, entry)

	return &SubmitEntryResponse{Outcome: outcome, Entry: entry}, nil
}

// fanOut pushes one accepted entry to every joined member except the
// submitter's own transport session.
func (s *SyncService) fanOut(c *Community, submitterTransport string, entry *domain.LogEntry) {
	frame := Frame{
		Kind:        FrameEntry,
		TeamID:      entry.CommunityID,
		ContentHash: entry.ID,
		PartitionID: entry.PartitionID,
		Payload:     entry.Entry,
	}
	for _, transportID := range c.joinedTransports(submitterTransport) {
		if s.caster.Send(transportID, frame) {
			s.metrics.FanoutMessages.Inc()
		}
	}
}

// ReleaseLimiter drops the per-connection submit limiter. Called when a
// connection leaves so the table tracks only live members.
func (s *SyncService) ReleaseLimiter(teamID, userID string) {
	s.limiters.Delete(teamID + "/" + userID)
}
