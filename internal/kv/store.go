package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a key-value store with per-key TTL. Two backends exist: an
// in-process map for single-instance deployments and a Redis-backed store
// for multi-instance ones. Callers must not depend on which is active.
//
// A ttl of zero means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores the value only if the key is absent and reports whether
	// it did. This is the atomic claim primitive; callers must not emulate
	// it with a Get followed by a Set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
