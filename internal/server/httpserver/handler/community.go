package handler

import (
	"net/http"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// handleCreateCommunity handles POST /v1/communities.
func (h *Handler) handleCreateCommunity(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateCommunityRequest
	if !h.decode(w, r, &req) {
		return
	}
	transport := transportID(r)
	if transport == "" {
		h.writeError(w, r, domain.ErrMissingArgument.WithDetails("transport session header is required"))
		return
	}

	_, conn, err := h.registry.Create(r.Context(), &service.CreateCommunityRequest{
		TeamID:      req.TeamID,
		UserID:      req.UserID,
		TransportID: transport,
		Ledger:      req.Ledger,
		KeyMaterial: req.KeyMaterial,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := &wire.CreateCommunityResponse{TeamID: req.TeamID}
	if conn != nil {
		resp.Connection = connectionResponse(conn)
	}
	h.writeSuccess(w, r, http.StatusCreated, resp)
}

// handleCommunityStatus handles GET /v1/communities/{team_id}.
func (h *Handler) handleCommunityStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.registry.Status(r.Context(), r.PathValue("team_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := &wire.CommunityStatusResponse{
		TeamID:          st.TeamID,
		ConnectionCount: st.ConnectionCount,
		IdleSince:       st.IdleSince,
	}
	for _, u := range st.Users {
		resp.Users = append(resp.Users, wire.UserStatus{
			UserID:      u.UserID,
			Status:      u.Status,
			ConnectedAt: u.ConnectedAt,
		})
	}
	h.writeSuccess(w, r, http.StatusOK, resp)
}

// handleStartConnection handles POST /v1/communities/{team_id}/connections.
func (h *Handler) handleStartConnection(w http.ResponseWriter, r *http.Request) {
	var req wire.StartConnectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	transport := transportID(r)
	if req.UserID == "" || transport == "" {
		h.writeError(w, r, domain.ErrMissingArgument.WithDetails("user_id and transport session header are required"))
		return
	}

	conn, err := h.registry.StartConnection(r.Context(), r.PathValue("team_id"), req.UserID, transport)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusCreated, connectionResponse(conn))
}

// handleStopConnection handles
// DELETE /v1/communities/{team_id}/connections/{user_id}. Stopping an
// unknown connection succeeds, so sign-out retries are safe.
func (h *Handler) handleStopConnection(w http.ResponseWriter, r *http.Request) {
	h.registry.StopConnection(r.PathValue("team_id"), r.PathValue("user_id"))
	h.sync.ReleaseLimiter(r.PathValue("team_id"), r.PathValue("user_id"))
	h.writeSuccess(w, r, http.StatusOK, nil)
}

func connectionResponse(conn *domain.Connection) *wire.ConnectionResponse {
	return &wire.ConnectionResponse{
		ConnectionID: conn.ID,
		TeamID:       conn.TeamID,
		UserID:       conn.UserID,
		Status:       conn.Status().String(),
		CreatedAt:    conn.CreatedAt,
	}
}
