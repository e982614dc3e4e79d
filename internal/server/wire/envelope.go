package wire

import (
	"encoding/json"
	"time"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
)

// Status is the coarse outcome a wire envelope reports.
type Status string

const (
	// StatusSending marks a server-initiated frame in flight to a peer.
	StatusSending Status = "sending"

	// StatusSuccess marks a completed request.
	StatusSuccess Status = "success"

	// StatusError marks a failed request; Reason carries the error code.
	StatusError Status = "error"

	// StatusUnauthorized marks a request rejected by the permission gate.
	StatusUnauthorized Status = "unauthorized"

	// StatusNotFound marks a request naming an unknown community.
	StatusNotFound Status = "not-found"
)

// Envelope is the one message shape on the wire, in both directions.
type Envelope struct {
	Timestamp int64           `json:"timestamp"`
	Status    Status          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Success builds a success envelope around payload. A marshal failure is
// a programming error and degrades to a plain error envelope.
func Success(payload any) *Envelope {
	env := &Envelope{
		Timestamp: time.Now().UnixMilli(),
		Status:    StatusSuccess,
	}
	if payload == nil {
		return env
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		env.Status = StatusError
		env.Reason = domain.ErrInternalServer.Code
		return env
	}
	env.Payload = raw
	return env
}

// Sending builds a server-initiated frame envelope around payload.
func Sending(payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Timestamp: time.Now().UnixMilli(),
		Status:    StatusSending,
		Payload:   raw,
	}, nil
}

// FromError builds the envelope for a failed request. Domain error codes
// select the wire status; the code itself travels in Reason so clients
// can branch without parsing the message.
func FromError(err error) *Envelope {
	env := &Envelope{
		Timestamp: time.Now().UnixMilli(),
		Status:    StatusError,
		Reason:    domain.ErrInternalServer.Code,
	}
	code := domain.GetErrorCode(err)
	if code == "" {
		return env
	}

	env.Reason = code
	switch code {
	case domain.ErrCommunityNotFound.Code:
		env.Status = StatusNotFound
	case domain.ErrNotAuthorized.Code, domain.ErrAuthPending.Code:
		env.Status = StatusUnauthorized
	}
	return env
}
