package cube

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/cache"
	"github.com/empresamix/mixbi/internal/domain"
)

// Source yields cube rows. Both Client and CachedSource implement it.
type Source interface {
	Fetch(ctx context.Context, cube string) FetchResult
}

// CachedSource serves cube rows from a cache.Store and falls through to the
// wrapped source on a miss. Only successful fetches are stored.
type CachedSource struct {
	next  Source
	store cache.Store
	log   *zap.Logger
}

func NewCachedSource(next Source, store cache.Store, log *zap.Logger) *CachedSource {
	return &CachedSource{next: next, store: store, log: log.Named("cube.cache")}
}

func CacheKey(cube string) string {
	return "cube:" + cube
}

func (s *CachedSource) Fetch(ctx context.Context, cube string) FetchResult {
	key := CacheKey(cube)
	if data, ok := s.store.Get(ctx, key); ok {
		var records []domain.FactRecord
		if err := json.Unmarshal(data, &records); err == nil && len(records) > 0 {
			return FetchResult{Records: records, Status: StatusOK}
		} else if err != nil {
			s.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		}
	}

	res := s.next.Fetch(ctx, cube)
	if res.Status != StatusOK {
		return res
	}
	data, err := json.Marshal(res.Records)
	if err != nil {
		s.log.Warn("encode cube rows for cache", zap.String("cube", cube), zap.Error(err))
		return res
	}
	if err := s.store.Set(ctx, key, data); err != nil {
		s.log.Warn("cache cube rows", zap.String("cube", cube), zap.Error(err))
	}
	return res
}
