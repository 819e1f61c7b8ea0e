package store

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/storage/memory/v2"
	"github.com/spf13/cast"
)

// MemoryStorage adapts the fiber in-process storage to the Storage
// interface. Incr is serialized with a mutex since the underlying store
// has no atomic counter support.
type MemoryStorage struct {
	mu  sync.Mutex
	mem *memory.Storage
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.mem.Get(key)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", ErrNotFound
	}
	return string(raw), nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val string, expiresIn time.Duration) error {
	return s.mem.Set(key, []byte(val), expiresIn)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	raw, err := s.mem.Get(key)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotFound
	}
	return s.mem.Delete(key)
}

func (s *MemoryStorage) Incr(ctx context.Context, key string, delta int64, expiresIn time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	raw, err := s.mem.Get(key)
	if err != nil {
		return 0, err
	}
	if raw != nil {
		current, err = cast.ToInt64E(string(raw))
		if err != nil {
			return 0, err
		}
	}
	current += delta
	if err := s.mem.Set(key, []byte(cast.ToString(current)), expiresIn); err != nil {
		return 0, err
	}
	return current, nil
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		mem: memory.New(),
	}
}
