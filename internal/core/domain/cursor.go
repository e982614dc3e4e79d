package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Cursor is a stable pagination position over a community's entry log: the
// total order key (ReceivedAt, ID) of the last row handed out, with ties
// broken lexicographically by ID. A cursor is always an exclusive lower
// bound; resuming with it yields the row immediately after.
//
// The zero Cursor means "from the beginning".
type Cursor struct {
	ReceivedAt int64
	ID         string
}

// IsZero reports whether the cursor marks the start of the log.
func (c Cursor) IsZero() bool {
	return c.ReceivedAt == 0 && c.ID == ""
}

// Before reports whether the cursor position sorts strictly before the row
// key (receivedAt, id).
func (c Cursor) Before(receivedAt int64, id string) bool {
	if c.ReceivedAt != receivedAt {
		return c.ReceivedAt < receivedAt
	}
	return c.ID < id
}

// Encode serializes the cursor to an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.ReceivedAt, 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode. An empty token yields the
// zero cursor. Returns a DomainError with code SM-SYNC-4000 on garbage.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrCursorMalformed.WithCause(err)
	}

	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Cursor{}, ErrCursorMalformed.WithDetails("missing separator")
	}

	receivedAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || receivedAt < 0 {
		return Cursor{}, ErrCursorMalformed.WithDetails(fmt.Sprintf("bad timestamp %q", ts))
	}

	return Cursor{ReceivedAt: receivedAt, ID: id}, nil
}
