package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis stores sealed entries in a redis server. Keys also get a server-side
// expiry so abandoned entries do not pile up; freshness is still decided on
// read against the injected clock.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  clockwork.Clock
	log    *zap.Logger
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, clock clockwork.Clock, log *zap.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttlOrDefault(ttl),
		clock:  clockOrReal(clock),
		log:    log.Named("cache.redis"),
	}
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("redis get", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	value, fresh, err := unseal(data, r.clock.Now(), r.ttl)
	if err != nil {
		r.log.Warn("corrupt redis entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, fresh
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	data, err := seal(r.clock.Now(), value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
