package domain

import (
	"strings"
	"testing"
)

func TestContentHash(t *testing.T) {
	h := ContentHash([]byte("hello"))
	if len(h) != EntryIDLength {
		t.Fatalf("len(hash) = %d, want %d", len(h), EntryIDLength)
	}
	if !IsValidEntryID(h) {
		t.Errorf("ContentHash output %q failed validation", h)
	}
	if h != ContentHash([]byte("hello")) {
		t.Error("hash is not deterministic")
	}
	if h == ContentHash([]byte("hello!")) {
		t.Error("different payloads produced the same hash")
	}
}

func TestNewLogEntry(t *testing.T) {
	payload := []byte("ciphertext")
	e, err := NewLogEntry("team-1", ContentHash(payload), "feed-1", payload)
	if err != nil {
		t.Fatalf("NewLogEntry() error = %v", err)
	}

	if e.ReceivedAt != 0 {
		t.Error("ReceivedAt must stay zero until insert")
	}
	if e.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}
}

func TestLogEntry_Validate(t *testing.T) {
	validID := ContentHash([]byte("x"))

	cases := []struct {
		name   string
		mutate func(*LogEntry)
	}{
		{"missing id", func(e *LogEntry) { e.ID = "" }},
		{"id not a hash", func(e *LogEntry) { e.ID = "not-hex" }},
		{"uppercase id", func(e *LogEntry) { e.ID = strings.ToUpper(validID) }},
		{"missing community", func(e *LogEntry) { e.CommunityID = "" }},
		{"missing payload", func(e *LogEntry) { e.Entry = nil }},
		{"oversized payload", func(e *LogEntry) { e.Entry = make([]byte, MaxEntrySize+1) }},
		{"partition too long", func(e *LogEntry) { e.PartitionID = strings.Repeat("p", MaxPartitionIDLength+1) }},
		{"missing created_at", func(e *LogEntry) { e.CreatedAt = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewLogEntry("team-1", validID, "", []byte("x"))
			if err != nil {
				t.Fatalf("NewLogEntry() error = %v", err)
			}
			tc.mutate(e)
			if err := e.Validate(); !IsDomainError(err, ErrEntryValidation.Code) {
				t.Errorf("Validate() = %v, want SM-SYNC-4001", err)
			}
		})
	}
}

func TestEntryFilter_Validate(t *testing.T) {
	f := EntryFilter{StartTs: 1000, EndTs: 500}
	if err := f.Validate(); !IsDomainError(err, ErrInvalidArgument.Code) {
		t.Errorf("inverted bounds: Validate() = %v", err)
	}

	f = EntryFilter{StartTs: 1000, ContentHash: "zz"}
	if err := f.Validate(); !IsDomainError(err, ErrInvalidArgument.Code) {
		t.Errorf("bad content hash: Validate() = %v", err)
	}

	f = EntryFilter{StartTs: 1000, EndTs: 2000, ContentHash: ContentHash([]byte("x"))}
	if err := f.Validate(); err != nil {
		t.Errorf("valid filter: Validate() = %v", err)
	}
}

func TestEntryFilter_Matches(t *testing.T) {
	id := ContentHash([]byte("row"))
	row := &LogEntry{ID: id, CommunityID: "team-1", PartitionID: "feed-1", Entry: []byte("row"), ReceivedAt: 1500}

	cases := []struct {
		name   string
		filter EntryFilter
		want   bool
	}{
		{"in range", EntryFilter{StartTs: 1000}, true},
		{"start inclusive", EntryFilter{StartTs: 1500}, true},
		{"before start", EntryFilter{StartTs: 2000}, false},
		{"end exclusive", EntryFilter{StartTs: 1000, EndTs: 1500}, false},
		{"inside end", EntryFilter{StartTs: 1000, EndTs: 1501}, true},
		{"partition match", EntryFilter{StartTs: 1000, PartitionID: "feed-1"}, true},
		{"partition mismatch", EntryFilter{StartTs: 1000, PartitionID: "feed-2"}, false},
		{"hash match", EntryFilter{StartTs: 1000, ContentHash: id}, true},
		{"hash mismatch", EntryFilter{StartTs: 1000, ContentHash: ContentHash([]byte("other"))}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(row); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}
