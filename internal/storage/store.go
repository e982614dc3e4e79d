package storage

import (
	"context"
	"errors"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrClosed   = errors.New("store closed")
)

// DefaultPageSize caps the number of rows one QueryPage call returns when
// the caller passes no positive page size.
const DefaultPageSize = 200

// InsertOutcome reports what an idempotent insert did.
type InsertOutcome uint8

const (
	// OutcomeInserted means a new row was durably stored.
	OutcomeInserted InsertOutcome = iota

	// OutcomeDuplicate means a row with the same ID already existed; the
	// write was a successful no-op.
	OutcomeDuplicate
)

// String returns the outcome name for logging.
func (o InsertOutcome) String() string {
	if o == OutcomeDuplicate {
		return "duplicate"
	}
	return "inserted"
}

// Page is one bounded slice of a community's entry log, in ascending
// (received_at, id) order.
type Page struct {
	// Rows holds the matching entries.
	Rows []*domain.LogEntry

	// NextCursor resumes exactly after the last row this page examined,
	// including rows a partition filter dropped. Only meaningful when
	// HasMore is true.
	NextCursor domain.Cursor

	// HasMore reports whether rows may exist beyond this page. It may be
	// conservatively true when trailing rows are filtered out; a follow-up
	// query then returns an empty page with HasMore false.
	HasMore bool
}

// LogStore persists the append-only entry log.
//
// Implementations must keep the (received_at, id) ordering stable across
// pages under concurrent inserts: they assign received_at at insert time,
// so a row can never appear at or before a cursor an in-flight pagination
// sequence already passed.
type LogStore interface {
	// Insert idempotently stores one entry and assigns its ReceivedAt.
	// A duplicate ID is a successful no-op, never an error.
	Insert(ctx context.Context, entry *domain.LogEntry) (InsertOutcome, error)

	// QueryPage returns one page of rows matching the filter, starting
	// strictly after the cursor (the zero cursor starts at the filter's
	// StartTs). pageSize <= 0 falls back to DefaultPageSize.
	QueryPage(ctx context.Context, teamID string, filter domain.EntryFilter, cursor domain.Cursor, pageSize int) (*Page, error)

	// CountEntries returns the number of stored rows for a community.
	CountEntries(ctx context.Context, teamID string) (int, error)
}

// CommunityStore persists community records.
type CommunityStore interface {
	// GetCommunity returns the record for teamID, or ErrNotFound.
	GetCommunity(ctx context.Context, teamID string) (*domain.Community, error)

	// PutCommunity stores or replaces the record.
	PutCommunity(ctx context.Context, c *domain.Community) error

	// DeleteCommunity removes the record. Missing records are a no-op.
	DeleteCommunity(ctx context.Context, teamID string) error
}

// SecretStore persists sealed server-side key material. Values are opaque
// ciphertext; sealing happens in internal/secrets.
type SecretStore interface {
	// PutSecret stores or replaces sealed bytes under name.
	PutSecret(ctx context.Context, name string, sealed []byte) error

	// GetSecret returns the sealed bytes for name, or ErrNotFound.
	GetSecret(ctx context.Context, name string) ([]byte, error)
}

// Store is the combined persistence surface the server wires up once.
type Store interface {
	LogStore
	CommunityStore
	SecretStore

	// Close gracefully shuts the store down.
	Close() error
}
