package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/storage"
)

func newClockedStore(start int64, step int64) *MemoryStore {
	s := NewStore()
	now := start - step
	s.SetClock(func() int64 {
		now += step
		return now
	})
	return s
}

func insertEntry(t *testing.T, s *MemoryStore, teamID, partition string, payload []byte) *domain.LogEntry {
	t.Helper()
	e, err := domain.NewLogEntry(teamID, domain.ContentHash(payload), partition, payload)
	if err != nil {
		t.Fatalf("NewLogEntry() error = %v", err)
	}
	outcome, err := s.Insert(context.Background(), e)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if outcome != storage.OutcomeInserted {
		t.Fatalf("Insert() outcome = %v, want inserted", outcome)
	}
	return e
}

func TestMemoryStore_InsertIdempotent(t *testing.T) {
	s := newClockedStore(1000, 1000)
	ctx := context.Background()

	first := insertEntry(t, s, "team-1", "", []byte("payload"))

	again, err := domain.NewLogEntry("team-1", first.ID, "", []byte("payload"))
	if err != nil {
		t.Fatalf("NewLogEntry() error = %v", err)
	}
	outcome, err := s.Insert(ctx, again)
	if err != nil {
		t.Fatalf("duplicate Insert() error = %v", err)
	}
	if outcome != storage.OutcomeDuplicate {
		t.Errorf("duplicate outcome = %v, want duplicate", outcome)
	}
	if again.ReceivedAt != first.ReceivedAt {
		t.Errorf("duplicate ReceivedAt = %d, want original %d", again.ReceivedAt, first.ReceivedAt)
	}

	if n, _ := s.CountEntries(ctx, "team-1"); n != 1 {
		t.Errorf("CountEntries() = %d, want 1", n)
	}
}

func TestMemoryStore_InsertAssignsReceivedAt(t *testing.T) {
	s := newClockedStore(5000, 1000)
	e := insertEntry(t, s, "team-1", "", []byte("a"))
	if e.ReceivedAt != 5000 {
		t.Errorf("ReceivedAt = %d, want 5000", e.ReceivedAt)
	}
}

func TestMemoryStore_QueryPageOrderingAndCursor(t *testing.T) {
	s := newClockedStore(1000, 1000)
	ctx := context.Background()

	var inserted []*domain.LogEntry
	for i := 0; i < 5; i++ {
		inserted = append(inserted, insertEntry(t, s, "team-1", "", []byte(fmt.Sprintf("row-%d", i))))
	}

	filter := domain.EntryFilter{StartTs: 1}

	page, err := s.QueryPage(ctx, "team-1", filter, domain.Cursor{}, 2)
	if err != nil {
		t.Fatalf("QueryPage() error = %v", err)
	}
	if len(page.Rows) != 2 || !page.HasMore {
		t.Fatalf("first page: %d rows, HasMore=%v", len(page.Rows), page.HasMore)
	}
	if page.Rows[0].ID != inserted[0].ID || page.Rows[1].ID != inserted[1].ID {
		t.Error("first page out of order")
	}

	page2, err := s.QueryPage(ctx, "team-1", filter, page.NextCursor, 10)
	if err != nil {
		t.Fatalf("QueryPage() resume error = %v", err)
	}
	if len(page2.Rows) != 3 || page2.HasMore {
		t.Fatalf("second page: %d rows, HasMore=%v", len(page2.Rows), page2.HasMore)
	}
	if page2.Rows[0].ID != inserted[2].ID {
		t.Error("cursor resume skipped or repeated a row")
	}
}

func TestMemoryStore_QueryPageTimeBounds(t *testing.T) {
	s := newClockedStore(1000, 1000) // rows at 1000..5000
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		insertEntry(t, s, "team-1", "", []byte(fmt.Sprintf("row-%d", i)))
	}

	// Start bound is inclusive.
	page, err := s.QueryPage(ctx, "team-1", domain.EntryFilter{StartTs: 3000}, domain.Cursor{}, 10)
	if err != nil {
		t.Fatalf("QueryPage() error = %v", err)
	}
	if len(page.Rows) != 3 || page.Rows[0].ReceivedAt != 3000 {
		t.Errorf("start bound: %d rows, first at %d", len(page.Rows), page.Rows[0].ReceivedAt)
	}

	// End bound is exclusive.
	page, err = s.QueryPage(ctx, "team-1", domain.EntryFilter{StartTs: 1000, EndTs: 3000}, domain.Cursor{}, 10)
	if err != nil {
		t.Fatalf("QueryPage() error = %v", err)
	}
	if len(page.Rows) != 2 || page.HasMore {
		t.Errorf("end bound: %d rows, HasMore=%v", len(page.Rows), page.HasMore)
	}
}

func TestMemoryStore_QueryPagePartitionFilter(t *testing.T) {
	s := newClockedStore(1000, 1000)
	ctx := context.Background()

	insertEntry(t, s, "team-1", "feed-a", []byte("a1"))
	insertEntry(t, s, "team-1", "feed-b", []byte("b1"))
	insertEntry(t, s, "team-1", "feed-a", []byte("a2"))

	page, err := s.QueryPage(ctx, "team-1", domain.EntryFilter{StartTs: 1, PartitionID: "feed-a"}, domain.Cursor{}, 10)
	if err != nil {
		t.Fatalf("QueryPage() error = %v", err)
	}
	if len(page.Rows) != 2 {
		t.Fatalf("partition filter: %d rows, want 2", len(page.Rows))
	}
	for _, row := range page.Rows {
		if row.PartitionID != "feed-a" {
			t.Errorf("row %s has partition %q", row.ID, row.PartitionID)
		}
	}
}

func TestMemoryStore_QueryPageContentHash(t *testing.T) {
	s := newClockedStore(1000, 1000)
	ctx := context.Background()

	insertEntry(t, s, "team-1", "", []byte("first"))
	want := insertEntry(t, s, "team-1", "", []byte("second"))
	insertEntry(t, s, "team-1", "", []byte("third"))

	page, err := s.QueryPage(ctx, "team-1", domain.EntryFilter{StartTs: 1, ContentHash: want.ID}, domain.Cursor{}, 10)
	if err != nil {
		t.Fatalf("QueryPage() error = %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].ID != want.ID || page.HasMore {
		t.Errorf("hash lookup: %d rows, HasMore=%v", len(page.Rows), page.HasMore)
	}

	// Out of the time window: no match.
	page, err = s.QueryPage(ctx, "team-1", domain.EntryFilter{StartTs: 9000, ContentHash: want.ID}, domain.Cursor{}, 10)
	if err != nil {
		t.Fatalf("QueryPage() error = %v", err)
	}
	if len(page.Rows) != 0 {
		t.Errorf("hash outside window returned %d rows", len(page.Rows))
	}
}

func TestMemoryStore_QueryPageUnknownTeam(t *testing.T) {
	s := NewStore()
	page, err := s.QueryPage(context.Background(), "ghost", domain.EntryFilter{StartTs: 1}, domain.Cursor{}, 10)
	if err != nil {
		t.Fatalf("QueryPage() error = %v", err)
	}
	if len(page.Rows) != 0 || page.HasMore {
		t.Errorf("unknown team: %d rows, HasMore=%v", len(page.Rows), page.HasMore)
	}
}

func TestMemoryStore_CommunityRoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.GetCommunity(ctx, "team-1"); err != storage.ErrNotFound {
		t.Errorf("missing community: err = %v, want ErrNotFound", err)
	}

	c, err := domain.NewCommunity("team-1", []byte(`{"team_id":"team-1"}`))
	if err != nil {
		t.Fatalf("NewCommunity() error = %v", err)
	}
	if err := s.PutCommunity(ctx, c); err != nil {
		t.Fatalf("PutCommunity() error = %v", err)
	}

	got, err := s.GetCommunity(ctx, "team-1")
	if err != nil {
		t.Fatalf("GetCommunity() error = %v", err)
	}
	// Mutating the returned copy must not touch the stored record.
	got.Ledger[0] = 'X'
	again, _ := s.GetCommunity(ctx, "team-1")
	if again.Ledger[0] == 'X' {
		t.Error("GetCommunity() returned a shared slice")
	}

	if err := s.DeleteCommunity(ctx, "team-1"); err != nil {
		t.Fatalf("DeleteCommunity() error = %v", err)
	}
	if _, err := s.GetCommunity(ctx, "team-1"); err != storage.ErrNotFound {
		t.Errorf("after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SecretRoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.GetSecret(ctx, "team-1"); err != storage.ErrNotFound {
		t.Errorf("missing secret: err = %v, want ErrNotFound", err)
	}

	if err := s.PutSecret(ctx, "team-1", []byte("sealed")); err != nil {
		t.Fatalf("PutSecret() error = %v", err)
	}
	got, err := s.GetSecret(ctx, "team-1")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if string(got) != "sealed" {
		t.Errorf("GetSecret() = %q", got)
	}
}
