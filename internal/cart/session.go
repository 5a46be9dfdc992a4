package cart

import (
	"time"

	"github.com/gofrs/uuid"
)

// State is where the customer is in the conversational order flow.
type State string

const (
	StateIdle                  State = "IDLE"
	StateSelectingRestaurant   State = "SELECTING_RESTAURANT"
	StateViewingMenu           State = "VIEWING_MENU"
	StateAddingItems           State = "ADDING_ITEMS"
	StateResolvingAmbiguity    State = "RESOLVING_AMBIGUITY"
	StateConfirmingOrder       State = "CONFIRMING_ORDER"
	StateAwaitingPaymentMethod State = "AWAITING_PAYMENT_METHOD"
	StateAwaitingPayment       State = "AWAITING_PAYMENT"
)

// Line is one pending cart entry with its price snapshot.
type Line struct {
	MenuItemID     uuid.UUID `json:"menu_item_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

// Candidate is one catalog match for an ambiguous item phrase.
type Candidate struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
}

// Ambiguity holds the single unresolved item question a session may carry.
type Ambiguity struct {
	Phrase     string      `json:"phrase"`
	Quantity   int         `json:"quantity"`
	Candidates []Candidate `json:"candidates"`
}

// Session is the ephemeral per-customer cart, keyed by the customer's phone.
// It lives in the kv store until the order is finalized, cancelled, or the
// TTL expires; losing it on restart is accepted.
type Session struct {
	// ID is unique per StartOrderCreation call; downstream idempotency keys
	// derived from it distinguish a replayed confirmation within this
	// session from a brand-new cart after this one is abandoned.
	ID             uuid.UUID  `json:"id"`
	CustomerKey    string     `json:"customer_key"`
	State          State      `json:"state"`
	RestaurantID   uuid.UUID  `json:"restaurant_id,omitempty"`
	RestaurantName string     `json:"restaurant_name,omitempty"`
	Items          []Line     `json:"items"`
	TotalCents     int64      `json:"total_cents"`
	Pending        *Ambiguity `json:"pending,omitempty"`
	OrderID        uuid.UUID  `json:"order_id,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// recomputeTotal sums line totals from scratch. Totals are never accumulated
// incrementally, so removal and replay cannot drift the sum.
func (s *Session) recomputeTotal() {
	var total int64
	for _, line := range s.Items {
		total += line.LineTotalCents
	}
	s.TotalCents = total
}
