package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/infra/buildinfo"
)

// healthPayload is the body of /health and /ready responses.
type healthPayload struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Communities int    `json:"communities,omitempty"`
}

// handleHealth handles GET /health. It answers as long as the process
// is serving requests.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, r, http.StatusOK, &healthPayload{
		Status:  "ok",
		Version: buildinfo.Version,
	})
}

// handleReady handles GET /ready. Readiness requires reachable storage.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.store.CountEntries(ctx, "readiness-probe"); err != nil {
		h.writeError(w, r, domain.ErrServiceUnavailable.WithCause(err))
		return
	}

	h.writeSuccess(w, r, http.StatusOK, &healthPayload{
		Status:      "ready",
		Version:     buildinfo.Version,
		Communities: h.registry.CommunityCount(),
	})
}
