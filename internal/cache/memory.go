package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	value    []byte
	storedAt time.Time
}

// Memory is a bounded in-process store. When full, the least recently used
// key is dropped.
type Memory struct {
	entries *lru.Cache[string, memoryEntry]
	ttl     time.Duration
	clock   clockwork.Clock
}

func NewMemory(size int, ttl time.Duration, clock clockwork.Clock) (*Memory, error) {
	if size <= 0 {
		size = 64
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Memory{entries: entries, ttl: ttlOrDefault(ttl), clock: clockOrReal(clock)}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.entries.Get(key)
	if !ok || !Fresh(e.storedAt, m.clock.Now(), m.ttl) {
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.entries.Add(key, memoryEntry{value: v, storedAt: m.clock.Now()})
	return nil
}
