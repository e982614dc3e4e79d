package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/storage"
	"github.com/sigmesh/sigmesh-go/pkg/cmap"
)

// MemoryStore implements storage.Store entirely in process memory.
type MemoryStore struct {
	communities *cmap.Map[string, *domain.Community]
	secrets     *cmap.Map[string, []byte]
	logs        *cmap.Map[string, *teamLog]

	clockMu sync.RWMutex
	clock   func() int64
}

// NewStore creates an empty in-memory store.
func NewStore() *MemoryStore {
	return &MemoryStore{
		communities: cmap.New[string, *domain.Community](),
		secrets:     cmap.New[string, []byte](),
		logs:        cmap.New[string, *teamLog](),
		clock:       func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock replaces the receive-timestamp source. Tests use it to pin
// deterministic (received_at, id) orders.
func (s *MemoryStore) SetClock(clock func() int64) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) now() int64 {
	s.clockMu.RLock()
	defer s.clockMu.RUnlock()
	return s.clock()
}

// teamLog holds one community's rows in ascending (ReceivedAt, ID) order.
type teamLog struct {
	mu   sync.RWMutex
	rows []*domain.LogEntry
	byID map[string]*domain.LogEntry
}

func newTeamLog() *teamLog {
	return &teamLog{byID: make(map[string]*domain.LogEntry)}
}

// Insert idempotently stores one entry and assigns its ReceivedAt.
func (s *MemoryStore) Insert(ctx context.Context, entry *domain.LogEntry) (storage.InsertOutcome, error) {
	if err := entry.Validate(); err != nil {
		return storage.OutcomeInserted, err
	}

	log, _ := s.logs.GetOrSet(entry.CommunityID, newTeamLog())

	log.mu.Lock()
	defer log.mu.Unlock()

	if existing, ok := log.byID[entry.ID]; ok {
		entry.ReceivedAt = existing.ReceivedAt
		return storage.OutcomeDuplicate, nil
	}

	entry.ReceivedAt = s.now()
	row := entry.Clone()

	// Rows stay sorted; a clock running backwards still lands correctly.
	idx := sort.Search(len(log.rows), func(i int) bool {
		r := log.rows[i]
		if r.ReceivedAt != row.ReceivedAt {
			return r.ReceivedAt > row.ReceivedAt
		}
		return r.ID > row.ID
	})
	log.rows = append(log.rows, nil)
	copy(log.rows[idx+1:], log.rows[idx:])
	log.rows[idx] = row
	log.byID[row.ID] = row

	return storage.OutcomeInserted, nil
}

// QueryPage returns one page of rows in ascending (received_at, id) order,
// starting strictly after the cursor.
func (s *MemoryStore) QueryPage(ctx context.Context, teamID string, filter domain.EntryFilter, cursor domain.Cursor, pageSize int) (*storage.Page, error) {
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}

	page := &storage.Page{}
	log, ok := s.logs.Get(teamID)
	if !ok {
		return page, nil
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	if filter.ContentHash != "" {
		row, ok := log.byID[filter.ContentHash]
		if !ok || !filter.Matches(row) {
			return page, nil
		}
		if !cursor.IsZero() && !cursor.Before(row.ReceivedAt, row.ID) {
			return page, nil
		}
		page.Rows = append(page.Rows, row.Clone())
		return page, nil
	}

	// First candidate: strictly after the cursor, or at the inclusive
	// start bound when the cursor is behind it.
	start := sort.Search(len(log.rows), func(i int) bool {
		r := log.rows[i]
		if !cursor.IsZero() && cursor.ReceivedAt >= filter.StartTs {
			return cursor.Before(r.ReceivedAt, r.ID)
		}
		return r.ReceivedAt >= filter.StartTs
	})

	for i := start; i < len(log.rows); i++ {
		row := log.rows[i]
		if filter.EndTs != 0 && row.ReceivedAt >= filter.EndTs {
			break
		}
		if len(page.Rows) == pageSize {
			page.HasMore = true
			break
		}
		// The cursor advances over filtered-out rows too, so a fully
		// filtered page still makes progress.
		page.NextCursor = domain.Cursor{ReceivedAt: row.ReceivedAt, ID: row.ID}
		if filter.PartitionID != "" && row.PartitionID != filter.PartitionID {
			continue
		}
		page.Rows = append(page.Rows, row.Clone())
	}
	return page, nil
}

// CountEntries returns the number of stored rows for a community.
func (s *MemoryStore) CountEntries(ctx context.Context, teamID string) (int, error) {
	log, ok := s.logs.Get(teamID)
	if !ok {
		return 0, nil
	}
	log.mu.RLock()
	defer log.mu.RUnlock()
	return len(log.byID), nil
}

// GetCommunity returns the record for teamID, or storage.ErrNotFound.
func (s *MemoryStore) GetCommunity(ctx context.Context, teamID string) (*domain.Community, error) {
	c, ok := s.communities.Get(teamID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// PutCommunity stores or replaces the record.
func (s *MemoryStore) PutCommunity(ctx context.Context, c *domain.Community) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.communities.Set(c.TeamID, c.Clone())
	return nil
}

// DeleteCommunity removes the record. Missing records are a no-op.
func (s *MemoryStore) DeleteCommunity(ctx context.Context, teamID string) error {
	s.communities.Delete(teamID)
	return nil
}

// PutSecret stores or replaces sealed bytes under name.
func (s *MemoryStore) PutSecret(ctx context.Context, name string, sealed []byte) error {
	cp := make([]byte, len(sealed))
	copy(cp, sealed)
	s.secrets.Set(name, cp)
	return nil
}

// GetSecret returns the sealed bytes for name, or storage.ErrNotFound.
func (s *MemoryStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	v, ok := s.secrets.Get(name)
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
