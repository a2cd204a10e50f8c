package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/cache"
	"github.com/empresamix/mixbi/internal/config"
	"github.com/empresamix/mixbi/internal/repository"
)

// openCache builds the configured cache backend. The returned close func is
// never nil.
func openCache(ctx context.Context, cfg config.CacheConfig, db *sql.DB, clock clockwork.Clock, log *zap.Logger) (cache.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendNone:
		return cache.Nop{}, noop, nil

	case config.BackendMemory:
		s, err := cache.NewMemory(cfg.Size, cfg.TTL, clock)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case config.BackendFile:
		s, err := cache.NewFile(cfg.Dir, cfg.TTL, clock, log)
		if err != nil {
			return nil, nil, fmt.Errorf("file cache: %w", err)
		}
		return s, noop, nil

	case config.BackendSQLite:
		s := repository.NewCacheStore(db, cfg.TTL, clock, log)
		if n, err := s.Purge(ctx); err != nil {
			log.Warn("purge expired cache entries", zap.Error(err))
		} else if n > 0 {
			log.Info("purged expired cache entries", zap.Int("count", n))
		}
		return s, noop, nil

	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := cache.NewRedis(client, cfg.Redis.KeyPrefix, cfg.TTL, clock, log)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		return s, client.Close, nil

	case config.BackendBadger:
		s, err := cache.OpenBadger(filepath.Join(cfg.Dir, "badger"), cfg.TTL, clock, log)
		if err != nil {
			return nil, nil, fmt.Errorf("badger cache: %w", err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
