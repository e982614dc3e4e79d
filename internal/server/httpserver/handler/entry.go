package handler

import (
	"net/http"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
	"github.com/sigmesh/sigmesh-go/internal/storage"
)

// handleSubmitEntry handles POST /v1/entries.
func (h *Handler) handleSubmitEntry(w http.ResponseWriter, r *http.Request) {
	var req wire.SubmitEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	transport := transportID(r)
	if transport == "" {
		h.writeError(w, r, domain.ErrMissingArgument.WithDetails("transport session header is required"))
		return
	}

	resp, err := h.sync.Submit(r.Context(), &service.SubmitEntryRequest{
		TeamID:      req.TeamID,
		UserID:      req.UserID,
		TransportID: transport,
		ContentHash: req.ContentHash,
		PartitionID: req.PartitionID,
		Entry:       req.Entry,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if resp.Outcome == storage.OutcomeDuplicate {
		status = http.StatusOK
	}
	h.writeSuccess(w, r, status, &wire.SubmitEntryResponse{
		ContentHash: resp.Entry.ID,
		Duplicate:   resp.Outcome == storage.OutcomeDuplicate,
		ReceivedAt:  resp.Entry.ReceivedAt,
	})
}

// handlePullEntries handles POST /v1/entries/pull.
func (h *Handler) handlePullEntries(w http.ResponseWriter, r *http.Request) {
	var req wire.PullEntriesRequest
	if !h.decode(w, r, &req) {
		return
	}
	transport := transportID(r)
	if transport == "" {
		h.writeError(w, r, domain.ErrMissingArgument.WithDetails("transport session header is required"))
		return
	}

	resp, err := h.sync.Pull(r.Context(), &service.PullEntriesRequest{
		TeamID:      req.TeamID,
		UserID:      req.UserID,
		TransportID: transport,
		StartTs:     req.StartTs,
		EndTs:       req.EndTs,
		PartitionID: req.PartitionID,
		ContentHash: req.ContentHash,
		Limit:       req.Limit,
		Cursor:      req.Cursor,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeSuccess(w, r, http.StatusOK, &wire.PullEntriesResponse{
		Entries:     resp.Entries,
		Cursor:      resp.Cursor,
		HasNextPage: resp.HasNextPage,
	})
}
