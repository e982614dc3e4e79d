package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/internal/server/httpserver/handler"
	"github.com/sigmesh/sigmesh-go/internal/server/relay"
	"github.com/sigmesh/sigmesh-go/internal/storage"
	"github.com/sigmesh/sigmesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Registry handles community and connection lifecycle.
	Registry *service.Registry

	// Sync handles log entry submission and pull.
	Sync *service.SyncService

	// Hub feeds the per-session event streams.
	Hub *relay.Hub

	// Store backs the readiness probe.
	Store storage.Store

	// Metrics serves /metrics and request instrumentation.
	Metrics *metric.Metrics

	// Logger for request logging.
	Logger *slog.Logger

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string

	// GlobalRateLimit is the global rate limit per IP (requests/second).
	GlobalRateLimit int

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		GlobalRateLimit: 1000,
		EnableAudit:     true,
	}
}

// NewRouter creates and configures the HTTP router with all routes and
// middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	h := handler.New(cfg.Registry, cfg.Sync, cfg.Hub, cfg.Store, cfg.Metrics, cfg.Logger)

	mux := http.NewServeMux()

	// Health and metrics endpoints skip audit and rate limiting so
	// probes and scrapes never contend with traffic.
	probeHandler := Chain(h, RequestID(), Recover(cfg.Logger))
	mux.Handle("GET /health", probeHandler)
	mux.Handle("GET /ready", probeHandler)
	mux.Handle("GET /metrics", probeHandler)

	// API endpoints get the full chain.
	// Order: Recover -> CORS -> RequestID -> RateLimit -> Audit -> Observe -> Handler
	apiMiddlewares := []Middleware{
		Recover(cfg.Logger),
		CORS(cfg.CORSAllowedOrigins),
		RequestID(),
	}
	if cfg.GlobalRateLimit > 0 {
		apiMiddlewares = append(apiMiddlewares, RateLimit(cfg.GlobalRateLimit))
	}
	if cfg.EnableAudit {
		apiMiddlewares = append(apiMiddlewares, Audit(cfg.Logger))
	}
	api := func(route string) http.Handler {
		return Chain(h, append(apiMiddlewares, Observe(cfg.Metrics, route))...)
	}

	// Community endpoints
	mux.Handle("POST /v1/communities", api("/v1/communities"))
	mux.Handle("GET /v1/communities/{team_id}", api("/v1/communities/{team_id}"))
	mux.Handle("POST /v1/communities/{team_id}/connections", api("/v1/communities/{team_id}/connections"))
	mux.Handle("DELETE /v1/communities/{team_id}/connections/{user_id}", api("/v1/communities/{team_id}/connections/{user_id}"))

	// Log entry endpoints
	mux.Handle("POST /v1/entries", api("/v1/entries"))
	mux.Handle("POST /v1/entries/pull", api("/v1/entries/pull"))

	// Membership sync
	mux.Handle("POST /v1/membership/messages", api("/v1/membership/messages"))

	// Event delivery stream. No audit wrapper: the stream stays open for
	// the session's lifetime and would log one giant request at close.
	mux.Handle("GET /v1/events", Chain(h, Recover(cfg.Logger), RequestID()))

	return mux
}
