package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zapfood/zapfood/internal/kv"
)

var (
	// ErrSessionNotFound: mutators never create sessions; only
	// StartOrderCreation does.
	ErrSessionNotFound = errors.New("cart: no active session")

	// ErrAmbiguityPending: a session answers one item question at a time.
	// A second ambiguous phrase is rejected until the first is resolved.
	ErrAmbiguityPending = errors.New("cart: another ambiguity is already pending")

	ErrNoAmbiguity = errors.New("cart: no pending ambiguity to resolve")
)

const keyPrefix = "cart:session:"

const lockStripes = 32

// Manager owns the conversational cart sessions. Reads and writes go through
// the kv store so the in-process and Redis backends are interchangeable;
// read-modify-write cycles are serialized per customer key with striped
// locks, since duplicate message delivery can land two mutations for the
// same customer concurrently.
//
// Sessions carry two independent expiry windows: idleTTL slides forward on
// every write, maxLifetime is absolute from StartOrderCreation and caps the
// sliding window.
type Manager struct {
	store       kv.Store
	maxLifetime time.Duration
	idleTTL     time.Duration
	locks       [lockStripes]sync.Mutex
}

func NewManager(store kv.Store, maxLifetime, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 || idleTTL > maxLifetime {
		idleTTL = maxLifetime
	}
	return &Manager{store: store, maxLifetime: maxLifetime, idleTTL: idleTTL}
}

func (m *Manager) lock(customerKey string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(customerKey))
	return &m.locks[h.Sum32()%lockStripes]
}

// StartOrderCreation creates a fresh session for the customer, replacing any
// previous one.
func (m *Manager) StartOrderCreation(ctx context.Context, customerKey string) (*Session, error) {
	mu := m.lock(customerKey)
	mu.Lock()
	defer mu.Unlock()

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("cart: generate session id: %w", err)
	}
	now := time.Now().UTC()
	session := &Session{
		ID:          id,
		CustomerKey: customerKey,
		State:       StateSelectingRestaurant,
		Items:       []Line{},
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.save(ctx, session); err != nil {
		return nil, err
	}
	log.Debug().Str("customer", customerKey).Msg("cart: session started")
	return session, nil
}

// Get returns the customer's session or ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, customerKey string) (*Session, error) {
	return m.load(ctx, customerKey)
}

func (m *Manager) SetRestaurant(ctx context.Context, customerKey string, restaurantID uuid.UUID, name string) (*Session, error) {
	return m.mutate(ctx, customerKey, func(s *Session) error {
		s.RestaurantID = restaurantID
		s.RestaurantName = name
		s.State = StateViewingMenu
		return nil
	})
}

// AddItem appends a line and recomputes the running total.
func (m *Manager) AddItem(ctx context.Context, customerKey string, line Line) (*Session, error) {
	if line.Quantity < 1 || line.Quantity > 99 {
		return nil, fmt.Errorf("cart: quantity must be between 1 and 99, got %d", line.Quantity)
	}
	return m.mutate(ctx, customerKey, func(s *Session) error {
		line.LineTotalCents = line.UnitPriceCents * int64(line.Quantity)
		s.Items = append(s.Items, line)
		s.recomputeTotal()
		if s.State != StateResolvingAmbiguity {
			s.State = StateAddingItems
		}
		return nil
	})
}

// RemoveItem drops the line at index. An out-of-range index is a caller
// error, never silently ignored.
func (m *Manager) RemoveItem(ctx context.Context, customerKey string, index int) (*Session, error) {
	return m.mutate(ctx, customerKey, func(s *Session) error {
		if index < 0 || index >= len(s.Items) {
			return fmt.Errorf("cart: item index %d out of range, cart has %d items", index, len(s.Items))
		}
		s.Items = append(s.Items[:index], s.Items[index+1:]...)
		s.recomputeTotal()
		return nil
	})
}

// SetPendingAmbiguity parks an ambiguous item phrase for the customer to
// resolve. Only one may be pending at a time.
func (m *Manager) SetPendingAmbiguity(ctx context.Context, customerKey string, pending Ambiguity) (*Session, error) {
	return m.mutate(ctx, customerKey, func(s *Session) error {
		if s.Pending != nil {
			return ErrAmbiguityPending
		}
		s.Pending = &pending
		s.State = StateResolvingAmbiguity
		return nil
	})
}

// ResolveAmbiguity turns the chosen candidate into a normal line item and
// clears the pending record.
func (m *Manager) ResolveAmbiguity(ctx context.Context, customerKey string, choice int) (*Session, error) {
	return m.mutate(ctx, customerKey, func(s *Session) error {
		if s.Pending == nil {
			return ErrNoAmbiguity
		}
		if choice < 0 || choice >= len(s.Pending.Candidates) {
			return fmt.Errorf("cart: choice %d out of range, %d candidates", choice, len(s.Pending.Candidates))
		}

		candidate := s.Pending.Candidates[choice]
		quantity := s.Pending.Quantity
		if quantity < 1 {
			quantity = 1
		}
		s.Items = append(s.Items, Line{
			MenuItemID:     candidate.MenuItemID,
			Name:           candidate.Name,
			Quantity:       quantity,
			UnitPriceCents: candidate.PriceCents,
			LineTotalCents: candidate.PriceCents * int64(quantity),
		})
		s.Pending = nil
		s.State = StateAddingItems
		s.recomputeTotal()
		return nil
	})
}

func (m *Manager) ClearPendingAmbiguity(ctx context.Context, customerKey string) (*Session, error) {
	return m.mutate(ctx, customerKey, func(s *Session) error {
		s.Pending = nil
		if s.State == StateResolvingAmbiguity {
			s.State = StateAddingItems
		}
		return nil
	})
}

func (m *Manager) UpdateState(ctx context.Context, customerKey string, state State) (*Session, error) {
	return m.mutate(ctx, customerKey, func(s *Session) error {
		s.State = state
		return nil
	})
}

// AttachOrder records the durable order the session produced.
func (m *Manager) AttachOrder(ctx context.Context, customerKey string, orderID uuid.UUID) (*Session, error) {
	return m.mutate(ctx, customerKey, func(s *Session) error {
		s.OrderID = orderID
		return nil
	})
}

// End discards the session, on finalization or explicit cancellation.
func (m *Manager) End(ctx context.Context, customerKey string) error {
	mu := m.lock(customerKey)
	mu.Lock()
	defer mu.Unlock()

	if err := m.store.Delete(ctx, keyPrefix+customerKey); err != nil {
		return fmt.Errorf("cart: delete session for %s: %w", customerKey, err)
	}
	return nil
}

// mutate runs one load-modify-save cycle under the customer's stripe lock.
// The lock serializes mutations within this process only; deployments
// running several instances against the shared Redis backend must route
// each customer's messages to one instance, since the kv interface has no
// conditional write to detect a cross-instance interleave.
func (m *Manager) mutate(ctx context.Context, customerKey string, fn func(*Session) error) (*Session, error) {
	mu := m.lock(customerKey)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.load(ctx, customerKey)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = time.Now().UTC()
	if err := m.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *Manager) load(ctx context.Context, customerKey string) (*Session, error) {
	raw, err := m.store.Get(ctx, keyPrefix+customerKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load session for %s: %w", customerKey, err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("cart: decode session for %s: %w", customerKey, err)
	}

	// The absolute lifetime holds even when sliding writes kept the kv entry
	// alive right up to the boundary.
	if !session.StartedAt.IsZero() && time.Since(session.StartedAt) >= m.maxLifetime {
		if err := m.store.Delete(ctx, keyPrefix+customerKey); err != nil {
			log.Warn().Err(err).Str("customer", customerKey).Msg("cart: failed to drop expired session")
		}
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (m *Manager) save(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("cart: encode session for %s: %w", session.CustomerKey, err)
	}

	ttl := m.idleTTL
	if !session.StartedAt.IsZero() {
		if remaining := time.Until(session.StartedAt.Add(m.maxLifetime)); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return ErrSessionNotFound
	}
	if err := m.store.Set(ctx, keyPrefix+session.CustomerKey, raw, ttl); err != nil {
		return fmt.Errorf("cart: store session for %s: %w", session.CustomerKey, err)
	}
	return nil
}
