package handler

import (
	"net/http"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// handleMembershipMessage handles POST /v1/membership/messages: one
// inbound membership sync envelope routed into the caller's engine
// session.
func (h *Handler) handleMembershipMessage(w http.ResponseWriter, r *http.Request) {
	var req wire.MembershipMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	transport := transportID(r)
	if transport == "" {
		h.writeError(w, r, domain.ErrMissingArgument.WithDetails("transport session header is required"))
		return
	}
	if req.TeamID == "" || req.UserID == "" || len(req.Message) == 0 {
		h.writeError(w, r, domain.ErrMissingArgument.WithDetails("team_id, user_id and message are required"))
		return
	}

	if err := h.registry.DeliverMembership(r.Context(), req.TeamID, req.UserID, transport, req.Message); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, nil)
}
