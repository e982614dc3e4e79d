package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Log entry constraints.
const (
	MaxPartitionIDLength = 128

	// MaxEntrySize bounds the opaque payload of a single log entry. It
	// matches the transport's maximum message size so no stored entry can
	// be undeliverable.
	MaxEntrySize = 1_000_000

	// EntryIDLength is the length of a hex-encoded SHA-256 content hash.
	EntryIDLength = 64
)

// LogEntry is one opaque, encrypted application message replicated through
// the server.
//
// The ID is the hex content hash of the plaintext payload, not a sequence
// number: re-submitting an entry with an ID already present is a successful
// no-op because the transport may retry or re-deliver.
type LogEntry struct {
	// ID is the hex SHA-256 content hash of the plaintext payload; the
	// primary key.
	ID string `json:"id"`

	// CommunityID identifies the owning community.
	CommunityID string `json:"community_id"`

	// PartitionID is an optional logical sub-log identifier.
	PartitionID string `json:"partition_id,omitempty"`

	// Entry holds the opaque serialized/encrypted payload bytes.
	Entry []byte `json:"entry"`

	// ReceivedAt is the ingest timestamp assigned by the server
	// (Unix milliseconds). Together with ID it forms the stable total
	// order for pagination.
	ReceivedAt int64 `json:"received_at"`

	// CreatedAt is the row creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`
}

// NewLogEntry builds an entry for the given community and payload. ReceivedAt
// stays zero; the store assigns it at insert time so the pagination order is
// stable under concurrent writes.
func NewLogEntry(communityID, id, partitionID string, payload []byte) (*LogEntry, error) {
	e := &LogEntry{
		ID:          strings.ToLower(id),
		CommunityID: communityID,
		PartitionID: partitionID,
		Entry:       payload,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// ContentHash returns the hex SHA-256 digest of the given payload, the form
// entry IDs take on the wire.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// IsValidEntryID checks that an ID is a lowercase hex SHA-256 digest.
func IsValidEntryID(id string) bool {
	if len(id) != EntryIDLength {
		return false
	}
	b, err := hex.DecodeString(id)
	return err == nil && len(b) == sha256.Size && strings.ToLower(id) == id
}

// Validate validates the entry fields against constraints.
// Returns a DomainError with code SM-SYNC-4001 if validation fails.
func (e *LogEntry) Validate() error {
	var violations []string

	if e.ID == "" {
		violations = append(violations, "id is required")
	} else if !IsValidEntryID(e.ID) {
		violations = append(violations, "id is not a hex sha-256 content hash")
	}
	if e.CommunityID == "" {
		violations = append(violations, "community_id is required")
	}
	if len(e.CommunityID) > MaxTeamIDLength {
		violations = append(violations, "community_id exceeds 128 characters")
	}
	// Community IDs become storage key segments; the separator is reserved.
	if strings.ContainsAny(e.CommunityID, "/\x00") {
		violations = append(violations, "community_id contains reserved characters")
	}
	if len(e.PartitionID) > MaxPartitionIDLength {
		violations = append(violations, "partition_id exceeds 128 characters")
	}
	if len(e.Entry) == 0 {
		violations = append(violations, "entry is required")
	}
	if len(e.Entry) > MaxEntrySize {
		violations = append(violations, "entry exceeds maximum size")
	}
	if e.CreatedAt == 0 {
		violations = append(violations, "created_at is required")
	}

	if len(violations) > 0 {
		return ErrEntryValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the entry.
func (e *LogEntry) Clone() *LogEntry {
	clone := *e
	if e.Entry != nil {
		clone.Entry = make([]byte, len(e.Entry))
		copy(clone.Entry, e.Entry)
	}
	return &clone
}

// EntryFilter narrows a log query. StartTs is required and inclusive; EndTs
// is optional and exclusive, matching the half-open convention of the keyed
// scan. When ContentHash is set the query matches at most one row and
// pagination degenerates to a single-item result.
type EntryFilter struct {
	// StartTs is the inclusive lower receive-time bound (Unix milliseconds).
	StartTs int64

	// EndTs is the exclusive upper receive-time bound; zero means no bound.
	EndTs int64

	// PartitionID restricts results to one sub-log when non-empty.
	PartitionID string

	// ContentHash restricts results to the single entry with this ID when
	// non-empty.
	ContentHash string
}

// Validate checks the filter for internal consistency.
func (f *EntryFilter) Validate() error {
	var violations []string

	if f.EndTs != 0 && f.EndTs <= f.StartTs {
		violations = append(violations, "end_ts must be after start_ts")
	}
	if len(f.PartitionID) > MaxPartitionIDLength {
		violations = append(violations, "partition_id exceeds 128 characters")
	}
	if f.ContentHash != "" && !IsValidEntryID(f.ContentHash) {
		violations = append(violations, "content_hash is not a hex sha-256 content hash")
	}

	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Matches reports whether the entry satisfies the filter bounds.
func (f *EntryFilter) Matches(e *LogEntry) bool {
	if e.ReceivedAt < f.StartTs {
		return false
	}
	if f.EndTs != 0 && e.ReceivedAt >= f.EndTs {
		return false
	}
	if f.PartitionID != "" && e.PartitionID != f.PartitionID {
		return false
	}
	if f.ContentHash != "" && e.ID != f.ContentHash {
		return false
	}
	return true
}
