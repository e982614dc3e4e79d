package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
)

// Key layout. Team IDs cannot contain '/', so every key parses
// unambiguously:
//
//	log/<team>/<be64 received_at>/<id>  -> entry row (JSON)
//	logidx/<team>/<id>                  -> be64 received_at
//	community/<team>                    -> community record (JSON)
//	secret/<name>                       -> sealed bytes
//
// Row keys sort exactly in the (received_at, id) pagination order, so one
// forward iterator yields pages without any in-memory sorting. The index
// keys give O(1) duplicate detection and exact content-hash lookup.
const (
	rowKeyPrefix       = "log/"
	indexKeyPrefix     = "logidx/"
	communityKeyPrefix = "community/"
	secretKeyPrefix    = "secret/"
)

// StoreConfig configures the Badger-backed store.
type StoreConfig struct {
	// Dir is the storage directory.
	Dir string

	// Badger holds engine tuning parameters.
	Badger BadgerTuning
}

// BadgerTuning contains Badger-specific tuning parameters.
type BadgerTuning struct {
	// GCInterval is the interval between automatic value-log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 1GB
	ValueLogFileSize int64

	// SyncWrites enables fsync after each write. Entries are the system
	// of record here, so this defaults to true.
	SyncWrites bool
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig(dir string) StoreConfig {
	return StoreConfig{
		Dir: dir,
		Badger: BadgerTuning{
			GCInterval:       "10m",
			GCThreshold:      0.5,
			CacheSize:        64 << 20,
			ValueLogFileSize: 1 << 30,
			SyncWrites:       true,
		},
	}
}

// BadgerStore implements Store using Badger v3.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerTuning
	logger *slog.Logger

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsTotalSize    prometheus.Gauge

	// Shutdown
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerStore opens the store at cfg.Dir.
func NewBadgerStore(cfg StoreConfig, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.BlockCacheSize = cfg.Badger.CacheSize
	opts.ValueLogFileSize = cfg.Badger.ValueLogFileSize
	opts.SyncWrites = cfg.Badger.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg.Badger,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	logger.Info("badger store started",
		"dir", cfg.Dir,
		"cache_size", cfg.Badger.CacheSize,
		"gc_interval", cfg.Badger.GCInterval)

	return s, nil
}

func rowKey(teamID string, receivedAt int64, id string) []byte {
	key := make([]byte, 0, len(rowKeyPrefix)+len(teamID)+1+8+1+len(id))
	key = append(key, rowKeyPrefix...)
	key = append(key, teamID...)
	key = append(key, '/')
	key = binary.BigEndian.AppendUint64(key, uint64(receivedAt))
	key = append(key, '/')
	key = append(key, id...)
	return key
}

func indexKey(teamID, id string) []byte {
	return []byte(indexKeyPrefix + teamID + "/" + id)
}

// Insert idempotently stores one entry. The entry's ReceivedAt is assigned
// inside the transaction so concurrent inserts can never land before a
// cursor a reader already passed.
func (s *BadgerStore) Insert(ctx context.Context, entry *domain.LogEntry) (InsertOutcome, error) {
	if err := entry.Validate(); err != nil {
		return OutcomeInserted, err
	}

	outcome := OutcomeInserted
	err := s.db.Update(func(txn *badger.Txn) error {
		idxKey := indexKey(entry.CommunityID, entry.ID)

		item, err := txn.Get(idxKey)
		if err == nil {
			// Duplicate: report the stored receive time back to the caller.
			outcome = OutcomeDuplicate
			return item.Value(func(v []byte) error {
				if len(v) == 8 {
					entry.ReceivedAt = int64(binary.BigEndian.Uint64(v))
				}
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		entry.ReceivedAt = time.Now().UnixMilli()

		value, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}

		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(entry.ReceivedAt))

		if err := txn.Set(rowKey(entry.CommunityID, entry.ReceivedAt, entry.ID), value); err != nil {
			return err
		}
		return txn.Set(idxKey, ts[:])
	})
	if err != nil {
		return OutcomeInserted, domain.ErrStorageError.WithCause(err)
	}
	return outcome, nil
}

// QueryPage returns one page of rows in ascending (received_at, id) order,
// starting strictly after the cursor.
func (s *BadgerStore) QueryPage(ctx context.Context, teamID string, filter domain.EntryFilter, cursor domain.Cursor, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if filter.ContentHash != "" {
		return s.queryByHash(teamID, filter, cursor)
	}

	prefix := []byte(rowKeyPrefix + teamID + "/")
	page := &Page{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek to the cursor when it is ahead of the start bound,
		// otherwise to the start bound itself (inclusive).
		var seek []byte
		skipCursorRow := false
		if !cursor.IsZero() && cursor.ReceivedAt >= filter.StartTs {
			seek = rowKey(teamID, cursor.ReceivedAt, cursor.ID)
			skipCursorRow = true
		} else {
			seek = rowKey(teamID, filter.StartTs, "")
		}

		for it.Seek(seek); it.Valid(); it.Next() {
			key := it.Item().Key()
			receivedAt, id, ok := parseRowKey(key, len(prefix))
			if !ok {
				continue
			}
			if skipCursorRow && receivedAt == cursor.ReceivedAt && id == cursor.ID {
				continue // cursor is an exclusive bound
			}
			if filter.EndTs != 0 && receivedAt >= filter.EndTs {
				break // keys are time-ordered, nothing further matches
			}

			if len(page.Rows) == pageSize {
				page.HasMore = true
				break
			}

			// The cursor advances over filtered-out rows too, so a
			// fully filtered page still makes progress.
			page.NextCursor = domain.Cursor{ReceivedAt: receivedAt, ID: id}

			var entry domain.LogEntry
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode entry %q: %w", key, err)
			}

			if filter.PartitionID != "" && entry.PartitionID != filter.PartitionID {
				continue
			}

			page.Rows = append(page.Rows, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return page, nil
}

// queryByHash is the degenerate exact-match path: at most one row.
func (s *BadgerStore) queryByHash(teamID string, filter domain.EntryFilter, cursor domain.Cursor) (*Page, error) {
	page := &Page{}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(teamID, filter.ContentHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var receivedAt int64
		if err := item.Value(func(v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("corrupt index value for %s", filter.ContentHash)
			}
			receivedAt = int64(binary.BigEndian.Uint64(v))
			return nil
		}); err != nil {
			return err
		}

		row, err := txn.Get(rowKey(teamID, receivedAt, filter.ContentHash))
		if err != nil {
			return err
		}

		var entry domain.LogEntry
		if err := row.Value(func(v []byte) error {
			return json.Unmarshal(v, &entry)
		}); err != nil {
			return err
		}

		if !filter.Matches(&entry) {
			return nil
		}
		if !cursor.IsZero() && !cursor.Before(entry.ReceivedAt, entry.ID) {
			return nil // already handed out before the cursor
		}

		page.Rows = append(page.Rows, &entry)
		return nil
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return page, nil
}

// parseRowKey splits a row key after the team prefix into its receive
// timestamp and entry ID.
func parseRowKey(key []byte, prefixLen int) (int64, string, bool) {
	rest := key[prefixLen:]
	if len(rest) < 8+1+1 || rest[8] != '/' {
		return 0, "", false
	}
	return int64(binary.BigEndian.Uint64(rest[:8])), string(rest[9:]), true
}

// CountEntries returns the number of stored rows for a community.
func (s *BadgerStore) CountEntries(ctx context.Context, teamID string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexKeyPrefix + teamID + "/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(err)
	}
	return count, nil
}

// GetCommunity returns the record for teamID, or ErrNotFound.
func (s *BadgerStore) GetCommunity(ctx context.Context, teamID string) (*domain.Community, error) {
	var c domain.Community

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(communityKeyPrefix + teamID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &c)
		})
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return &c, nil
}

// PutCommunity stores or replaces the record.
func (s *BadgerStore) PutCommunity(ctx context.Context, c *domain.Community) error {
	if err := c.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(c)
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(communityKeyPrefix+c.TeamID), value)
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// DeleteCommunity removes the record. Missing records are a no-op.
func (s *BadgerStore) DeleteCommunity(ctx context.Context, teamID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(communityKeyPrefix + teamID))
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// PutSecret stores or replaces sealed bytes under name.
func (s *BadgerStore) PutSecret(ctx context.Context, name string, sealed []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(secretKeyPrefix+name), sealed)
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// GetSecret returns the sealed bytes for name, or ErrNotFound.
func (s *BadgerStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	var sealed []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(secretKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		sealed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return sealed, nil
}

// Close gracefully shuts down the store.
func (s *BadgerStore) Close() error {
	s.logger.Info("shutting down badger store")

	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	s.logger.Info("badger store shutdown complete")
	return nil
}

// RegisterMetrics registers store metrics with Prometheus.
//
// This should be called once during initialization.
// Returns the store for method chaining.
func (s *BadgerStore) RegisterMetrics(registry *prometheus.Registry) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sigmesh",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})

	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sigmesh",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	s.metricsTotalSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sigmesh",
		Subsystem: "badger",
		Name:      "total_size_bytes",
		Help:      "Badger total storage size in bytes (LSM + value log)",
	})

	registry.MustRegister(
		s.metricsLSMSize,
		s.metricsValueLogSize,
		s.metricsTotalSize,
	)

	go s.metricsUpdateLoop()

	return s
}

// metricsUpdateLoop periodically updates Prometheus metrics.
func (s *BadgerStore) metricsUpdateLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			s.metricsLSMSize.Set(float64(lsm))
			s.metricsValueLogSize.Set(float64(vlog))
			s.metricsTotalSize.Set(float64(lsm + vlog))

		case <-s.stopCh:
			return
		}
	}
}

// gcLoop runs periodic value-log garbage collection.
func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	interval, err := time.ParseDuration(s.cfg.GCInterval)
	if err != nil {
		s.logger.Error("invalid gc_interval, using default 10m", "error", err)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(s.cfg.GCThreshold)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Error("value log gc failed", "error", err)
					}
					break
				}
			}

		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
