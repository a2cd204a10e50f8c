package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/cache"
)

// CacheStore is the sqlite-backed cache.Store. Entries are upserted, so the
// last writer wins.
type CacheStore struct {
	db    *sql.DB
	ttl   time.Duration
	clock clockwork.Clock
	log   *zap.Logger
}

func NewCacheStore(db *sql.DB, ttl time.Duration, clock clockwork.Clock, log *zap.Logger) *CacheStore {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CacheStore{db: db, ttl: ttl, clock: clock, log: log.Named("cache.sqlite")}
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	var storedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, stored_at FROM cache_entries WHERE key = ?", key,
	).Scan(&value, &storedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("read cache entry", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if !cache.Fresh(time.Unix(0, storedAt), s.clock.Now(), s.ttl) {
		return nil, false
	}
	return value, true
}

func (s *CacheStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, stored_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at`,
		key, value, s.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w", key, err)
	}
	return nil
}

// Purge deletes entries that are already stale and returns how many went.
func (s *CacheStore) Purge(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE stored_at <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
