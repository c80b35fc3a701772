package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or its TTL has elapsed.
// The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("key not found")

// Store is the ephemeral state capability: per-key TTL set, get, delete.
// The TTL is a parameter of every write, not a property of the key. Each
// operation is individually atomic.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
