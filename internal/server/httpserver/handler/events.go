package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// heartbeatInterval keeps idle SSE streams alive through proxies.
const heartbeatInterval = 25 * time.Second

// handleEvents handles GET /v1/events?transport_id=...: the SSE stream
// a transport session consumes for fan-out and membership frames.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	tid := r.URL.Query().Get("transport_id")
	if tid == "" {
		tid = transportID(r)
	}
	if tid == "" {
		h.writeError(w, r, domain.ErrMissingArgument.WithDetails("transport_id is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, domain.ErrInternalServer.WithDetails("streaming unsupported"))
		return
	}

	frames, detach := h.hub.Attach(tid)
	defer detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("event stream opened", "transport_id", tid)
	defer h.logger.Info("event stream closed", "transport_id", tid)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case frame, ok := <-frames:
			if !ok {
				// Replaced by a newer attach for the same transport.
				return
			}
			if err := writeSSEFrame(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEFrame serializes one frame as an SSE event carrying a
// server-initiated wire envelope.
func writeSSEFrame(w http.ResponseWriter, frame service.Frame) error {
	env, err := wire.Sending(&wire.EventFrame{
		Kind:        string(frame.Kind),
		TeamID:      frame.TeamID,
		UserID:      frame.UserID,
		ContentHash: frame.ContentHash,
		PartitionID: frame.PartitionID,
		Payload:     frame.Payload,
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Kind, data)
	return err
}
