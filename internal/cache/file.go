package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// File keeps one JSON document per key under a directory:
// {"timestamp": ..., "content": ...}.
type File struct {
	dir   string
	ttl   time.Duration
	clock clockwork.Clock
	log   *zap.Logger
}

func NewFile(dir string, ttl time.Duration, clock clockwork.Clock, log *zap.Logger) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &File{dir: dir, ttl: ttlOrDefault(ttl), clock: clockOrReal(clock), log: log.Named("cache.file")}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, fileName(key)+".json")
}

// fileName maps a key onto a safe file name. Bytes outside [A-Za-z0-9._-]
// are percent-encoded, '%' included, so distinct keys never share a file.
func fileName(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.log.Warn("read cache file", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	value, fresh, err := unseal(data, f.clock.Now(), f.ttl)
	if err != nil {
		f.log.Warn("corrupt cache file", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, fresh
}

// Set writes through a temp file and a rename so readers never see a
// partially written entry.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	data, err := seal(f.clock.Now(), value)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, fileName(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}
