package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Badger stores sealed entries in an embedded badger database.
type Badger struct {
	db    *badger.DB
	ttl   time.Duration
	clock clockwork.Clock
	log   *zap.Logger
}

// OpenBadger opens (or creates) a database at path. An empty path opens an
// in-memory database.
func OpenBadger(path string, ttl time.Duration, clock clockwork.Clock, log *zap.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	return &Badger{db: db, ttl: ttlOrDefault(ttl), clock: clockOrReal(clock), log: log.Named("cache.badger")}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, bool) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			b.log.Warn("badger read", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	value, fresh, err := unseal(data, b.clock.Now(), b.ttl)
	if err != nil {
		b.log.Warn("corrupt badger entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, fresh
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	data, err := seal(b.clock.Now(), value)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(b.ttl))
	})
	if err != nil {
		return fmt.Errorf("badger write %s: %w", key, err)
	}
	return nil
}
