package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zapfood/zapfood/internal/kv"
)

// Record is what a completed idempotent operation leaves behind: the
// processed flag and an optional cached result (typically an order id).
type Record struct {
	Processed bool      `json:"processed"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps exactly-once bookkeeping keyed by operation-scoped strings
// such as "order:create:<key>" or "payment:confirm:<payment_id>".
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

func NewStore(backend kv.Store, ttl time.Duration) *Store {
	return &Store{kv: backend, ttl: ttl}
}

// Check reports whether the key was already processed, along with the cached
// result. Backend read failures are fail-open: a broken idempotency store
// must not block the user, so the caller sees "not yet processed" and the
// failure is logged.
func (s *Store) Check(ctx context.Context, key string) (processed bool, result string, err error) {
	raw, err := s.kv.Get(ctx, key)
	if err == kv.ErrNotFound {
		return false, "", nil
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("idempotency: read failed, treating as unprocessed")
		return false, "", nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("idempotency: corrupt record, treating as unprocessed")
		return false, "", nil
	}
	return rec.Processed, rec.Result, nil
}

// MarkProcessed records the key as done with an atomic set-if-absent, so two
// concurrent callers racing to claim the same key cannot both think they won
// a fresh write. Losing the race is not an error. Unlike Check, a backend
// failure here is surfaced: this write is what guards against double-charging.
func (s *Store) MarkProcessed(ctx context.Context, key, result string) error {
	raw, err := json.Marshal(Record{Processed: true, Result: result, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("idempotency: marshal record for %q: %w", key, err)
	}

	claimed, err := s.kv.SetNX(ctx, key, raw, s.ttl)
	if err != nil {
		return fmt.Errorf("idempotency: mark %q processed: %w", key, err)
	}
	if !claimed {
		log.Debug().Str("key", key).Msg("idempotency: key already marked by a concurrent caller")
	}
	return nil
}
