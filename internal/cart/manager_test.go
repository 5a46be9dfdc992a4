package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapfood/zapfood/internal/cart"
	"github.com/zapfood/zapfood/internal/kv"
)

const customerKey = "5511999990000"

var (
	burgerID = uuid.Must(uuid.FromString("22222222-2222-2222-2222-222222222222"))
	sodaID   = uuid.Must(uuid.FromString("33333333-3333-3333-3333-333333333333"))
	pizzaRst = uuid.Must(uuid.FromString("11111111-1111-1111-1111-111111111111"))
)

func newManager(t *testing.T) *cart.Manager {
	t.Helper()
	store := kv.NewMemoryStore()
	t.Cleanup(store.Close)
	return cart.NewManager(store, 30*time.Minute, 10*time.Minute)
}

func startSession(t *testing.T, m *cart.Manager) *cart.Session {
	t.Helper()
	session, err := m.StartOrderCreation(context.Background(), customerKey)
	require.NoError(t, err)
	return session
}

func TestManager_MutatorsNeverCreateSessions(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	_, err := m.AddItem(ctx, customerKey, cart.Line{MenuItemID: burgerID, Name: "X-Burger", Quantity: 1, UnitPriceCents: 2000})
	assert.ErrorIs(t, err, cart.ErrSessionNotFound)

	_, err = m.SetRestaurant(ctx, customerKey, pizzaRst, "Pizzaria")
	assert.ErrorIs(t, err, cart.ErrSessionNotFound)

	_, err = m.UpdateState(ctx, customerKey, cart.StateConfirmingOrder)
	assert.ErrorIs(t, err, cart.ErrSessionNotFound)

	// None of the rejected mutators may have left a session behind.
	_, err = m.Get(ctx, customerKey)
	assert.ErrorIs(t, err, cart.ErrSessionNotFound)
}

func TestManager_AddAndRemoveRecomputesTotal(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	startSession(t, m)

	session, err := m.AddItem(ctx, customerKey, cart.Line{MenuItemID: burgerID, Name: "X-Burger", Quantity: 2, UnitPriceCents: 2000})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), session.TotalCents)

	session, err = m.AddItem(ctx, customerKey, cart.Line{MenuItemID: sodaID, Name: "Refrigerante", Quantity: 1, UnitPriceCents: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(4500), session.TotalCents)
	assert.Equal(t, cart.StateAddingItems, session.State)

	session, err = m.RemoveItem(ctx, customerKey, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(500), session.TotalCents)
	require.Len(t, session.Items, 1)
	assert.Equal(t, "Refrigerante", session.Items[0].Name)
}

func TestManager_RemoveItemOutOfRange(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	startSession(t, m)

	_, err := m.AddItem(ctx, customerKey, cart.Line{MenuItemID: burgerID, Name: "X-Burger", Quantity: 1, UnitPriceCents: 2000})
	require.NoError(t, err)

	_, err = m.RemoveItem(ctx, customerKey, 1)
	assert.Error(t, err)
	_, err = m.RemoveItem(ctx, customerKey, -1)
	assert.Error(t, err)

	session, err := m.Get(ctx, customerKey)
	require.NoError(t, err)
	assert.Len(t, session.Items, 1, "a rejected removal must not change the cart")
}

func TestManager_AddItemQuantityBounds(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	startSession(t, m)

	_, err := m.AddItem(ctx, customerKey, cart.Line{MenuItemID: burgerID, Quantity: 0, UnitPriceCents: 2000})
	assert.Error(t, err)
	_, err = m.AddItem(ctx, customerKey, cart.Line{MenuItemID: burgerID, Quantity: 100, UnitPriceCents: 2000})
	assert.Error(t, err)
}

func TestManager_SinglePendingAmbiguity(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	startSession(t, m)

	first := cart.Ambiguity{
		Phrase:   "burger",
		Quantity: 2,
		Candidates: []cart.Candidate{
			{MenuItemID: burgerID, Name: "X-Burger", PriceCents: 2000},
			{MenuItemID: sodaID, Name: "X-Burger Duplo", PriceCents: 2800},
		},
	}
	session, err := m.SetPendingAmbiguity(ctx, customerKey, first)
	require.NoError(t, err)
	assert.Equal(t, cart.StateResolvingAmbiguity, session.State)

	// One question at a time: a second ambiguity is rejected, not queued.
	_, err = m.SetPendingAmbiguity(ctx, customerKey, cart.Ambiguity{Phrase: "pizza"})
	assert.ErrorIs(t, err, cart.ErrAmbiguityPending)

	session, err = m.Get(ctx, customerKey)
	require.NoError(t, err)
	require.NotNil(t, session.Pending)
	assert.Equal(t, "burger", session.Pending.Phrase)
}

func TestManager_ResolveAmbiguity(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	startSession(t, m)

	_, err := m.SetPendingAmbiguity(ctx, customerKey, cart.Ambiguity{
		Phrase:   "burger",
		Quantity: 2,
		Candidates: []cart.Candidate{
			{MenuItemID: burgerID, Name: "X-Burger", PriceCents: 2000},
			{MenuItemID: sodaID, Name: "X-Burger Duplo", PriceCents: 2800},
		},
	})
	require.NoError(t, err)

	_, err = m.ResolveAmbiguity(ctx, customerKey, 5)
	assert.Error(t, err, "choice outside the candidate list is rejected")

	session, err := m.ResolveAmbiguity(ctx, customerKey, 1)
	require.NoError(t, err)
	assert.Nil(t, session.Pending)
	assert.Equal(t, cart.StateAddingItems, session.State)
	require.Len(t, session.Items, 1)
	assert.Equal(t, "X-Burger Duplo", session.Items[0].Name)
	assert.Equal(t, 2, session.Items[0].Quantity)
	assert.Equal(t, int64(5600), session.TotalCents)

	_, err = m.ResolveAmbiguity(ctx, customerKey, 0)
	assert.ErrorIs(t, err, cart.ErrNoAmbiguity)
}

func TestManager_StartReplacesExistingSession(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	startSession(t, m)

	_, err := m.AddItem(ctx, customerKey, cart.Line{MenuItemID: burgerID, Name: "X-Burger", Quantity: 1, UnitPriceCents: 2000})
	require.NoError(t, err)

	session, err := m.StartOrderCreation(ctx, customerKey)
	require.NoError(t, err)
	assert.Empty(t, session.Items)
	assert.Equal(t, cart.StateSelectingRestaurant, session.State)
}

func TestManager_EndRemovesSession(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	startSession(t, m)

	require.NoError(t, m.End(ctx, customerKey))
	_, err := m.Get(ctx, customerKey)
	assert.ErrorIs(t, err, cart.ErrSessionNotFound)
}

func TestManager_SessionExpires(t *testing.T) {
	store := kv.NewMemoryStore()
	t.Cleanup(store.Close)
	m := cart.NewManager(store, 20*time.Millisecond, 20*time.Millisecond)

	ctx := context.Background()
	_, err := m.StartOrderCreation(ctx, customerKey)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = m.Get(ctx, customerKey)
	assert.ErrorIs(t, err, cart.ErrSessionNotFound)
}

func TestManager_IdleExpiryIndependentOfLifetime(t *testing.T) {
	store := kv.NewMemoryStore()
	t.Cleanup(store.Close)
	// Plenty of lifetime left, but the conversation goes quiet.
	m := cart.NewManager(store, time.Hour, 20*time.Millisecond)

	ctx := context.Background()
	_, err := m.StartOrderCreation(ctx, customerKey)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = m.Get(ctx, customerKey)
	assert.ErrorIs(t, err, cart.ErrSessionNotFound)
}

func TestManager_LifetimeCapsIdleRefresh(t *testing.T) {
	store := kv.NewMemoryStore()
	t.Cleanup(store.Close)
	// The idle window alone would keep the session alive forever.
	m := cart.NewManager(store, 60*time.Millisecond, time.Hour)

	ctx := context.Background()
	_, err := m.StartOrderCreation(ctx, customerKey)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = m.UpdateState(ctx, customerKey, cart.StateAddingItems)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	_, err = m.Get(ctx, customerKey)
	assert.ErrorIs(t, err, cart.ErrSessionNotFound, "a write must not extend the session past its lifetime")
}

func TestManager_StartIssuesFreshSessionID(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	first, err := m.StartOrderCreation(ctx, customerKey)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first.ID)

	second, err := m.StartOrderCreation(ctx, customerKey)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "each cart is its own session, even for the same customer")
}
