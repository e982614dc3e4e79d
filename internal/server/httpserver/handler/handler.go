package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/internal/server/relay"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
	"github.com/sigmesh/sigmesh-go/internal/storage"
	"github.com/sigmesh/sigmesh-go/internal/telemetry/metric"
)

// headerTransport carries the caller's transport session ID.
const headerTransport = "X-Sigmesh-Transport"

// Handler is the main HTTP handler that routes requests to the domain
// services.
type Handler struct {
	registry *service.Registry
	sync     *service.SyncService
	hub      *relay.Hub
	store    storage.Store
	metrics  *metric.Metrics
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a new Handler wired to the given services.
func New(registry *service.Registry, sync *service.SyncService, hub *relay.Hub, store storage.Store, metrics *metric.Metrics, logger *slog.Logger) *Handler {
	h := &Handler{
		registry: registry,
		sync:     sync,
		hub:      hub,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Metrics endpoint (Prometheus text format, not the wire envelope)
	h.mux.Handle("GET /metrics", h.metrics.Handler())

	// Community endpoints
	h.mux.HandleFunc("POST /v1/communities", h.handleCreateCommunity)
	h.mux.HandleFunc("GET /v1/communities/{team_id}", h.handleCommunityStatus)
	h.mux.HandleFunc("POST /v1/communities/{team_id}/connections", h.handleStartConnection)
	h.mux.HandleFunc("DELETE /v1/communities/{team_id}/connections/{user_id}", h.handleStopConnection)

	// Log entry endpoints
	h.mux.HandleFunc("POST /v1/entries", h.handleSubmitEntry)
	h.mux.HandleFunc("POST /v1/entries/pull", h.handlePullEntries)

	// Membership sync
	h.mux.HandleFunc("POST /v1/membership/messages", h.handleMembershipMessage)

	// Event delivery stream
	h.mux.HandleFunc("GET /v1/events", h.handleEvents)
}

// transportID extracts the caller's transport session ID.
func transportID(r *http.Request) string {
	return r.Header.Get(headerTransport)
}

// decode reads the JSON request body into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, domain.ErrBadRequest.WithDetails("malformed request body"))
		return false
	}
	return true
}

// writeEnvelope writes a wire envelope with the given HTTP status.
func (h *Handler) writeEnvelope(w http.ResponseWriter, r *http.Request, status int, env *wire.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if env.Reason != "" {
		w.Header().Set("X-Error-Code", env.Reason)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeSuccess writes a success envelope around payload.
func (h *Handler) writeSuccess(w http.ResponseWriter, r *http.Request, status int, payload any) {
	h.writeEnvelope(w, r, status, wire.Success(payload))
}

// writeError converts a service error to an envelope response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.GetErrorCode(err)
	if code == "" {
		h.logger.Error("internal error", "error", err)
		h.writeEnvelope(w, r, http.StatusInternalServerError, wire.FromError(domain.ErrInternalServer))
		return
	}

	status := errorCodeToHTTPStatus(code)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	h.writeEnvelope(w, r, status, wire.FromError(err))
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"), strings.HasSuffix(code, "-4250"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4000"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4010"):
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "SM-ARG-"):
		return http.StatusBadRequest
	case code == "SM-SYS-5030":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
