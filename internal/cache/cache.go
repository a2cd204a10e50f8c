// Package cache holds the TTL key/value contract used to keep cube payloads
// between requests, plus its in-process, file, redis and badger backends.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/metrics"
)

// DefaultTTL is how long a cube payload stays fresh.
const DefaultTTL = 30 * time.Minute

// Store is a string-keyed byte store whose entries expire TTL after being
// written. Get reports absent for a stale entry without needing eviction.
// Backend failures on Get read as a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
}

// Fresh reports whether an entry written at storedAt is still within ttl.
func Fresh(storedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(storedAt) < ttl
}

// envelope is the on-disk shape shared by the serialized backends. JSON
// payloads are kept inline so a cache file stays readable.
type envelope struct {
	Timestamp time.Time       `json:"timestamp"`
	Content   json.RawMessage `json:"content,omitempty"`
	Raw       []byte          `json:"raw,omitempty"`
}

func seal(now time.Time, value []byte) ([]byte, error) {
	env := envelope{Timestamp: now}
	if json.Valid(value) {
		env.Content = value
	} else {
		env.Raw = value
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("seal cache entry: %w", err)
	}
	return data, nil
}

// unseal returns the payload and whether it is still fresh.
func unseal(data []byte, now time.Time, ttl time.Duration) ([]byte, bool, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("unseal cache entry: %w", err)
	}
	if !Fresh(env.Timestamp, now, ttl) {
		return nil, false, nil
	}
	if env.Content != nil {
		return []byte(env.Content), true, nil
	}
	return env.Raw, true, nil
}

// Nop never holds anything. It backs the "none" cache backend.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, []byte) error { return nil }

// Instrumented counts hits, misses and write failures of the wrapped store.
type Instrumented struct {
	next    Store
	metrics *metrics.Collector
	log     *zap.Logger
}

func NewInstrumented(next Store, m *metrics.Collector, log *zap.Logger) *Instrumented {
	return &Instrumented{next: next, metrics: m, log: log.Named("cache")}
}

func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := s.next.Get(ctx, key)
	if ok {
		s.metrics.RecordCache("get", "hit")
		s.log.Debug("cache hit", zap.String("key", key), zap.Int("bytes", len(v)))
	} else {
		s.metrics.RecordCache("get", "miss")
		s.log.Debug("cache miss", zap.String("key", key))
	}
	return v, ok
}

func (s *Instrumented) Set(ctx context.Context, key string, value []byte) error {
	if err := s.next.Set(ctx, key, value); err != nil {
		s.metrics.RecordCache("set", "error")
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	s.metrics.RecordCache("set", "ok")
	return nil
}

// clockOrReal defaults a nil clock to the wall clock.
func clockOrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
