package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage is a small expiring key-value store used for short-lived state
// that does not belong in the relational database, such as rate-limit
// block entries. Backed by process memory or redis.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, val string, expiresIn time.Duration) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string, delta int64, expiresIn time.Duration) (int64, error)
}
