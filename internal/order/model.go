package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusNew             Status = "NEW"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaid            Status = "PAID"
	StatusPreparing       Status = "PREPARING"
	StatusReady           Status = "READY"
	StatusDelivered       Status = "DELIVERED"
	StatusCancelled       Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

var displayNames = map[Status]string{
	StatusDraft:           "rascunho",
	StatusNew:             "recebido",
	StatusAwaitingPayment: "aguardando pagamento",
	StatusPaid:            "pago",
	StatusPreparing:       "em preparo",
	StatusReady:           "pronto para retirada",
	StatusDelivered:       "entregue",
	StatusCancelled:       "cancelado",
}

// Display is the single human-facing name for a status. Notification and
// conversation copy must use this mapping rather than keeping their own.
func (s Status) Display() string {
	if name, ok := displayNames[s]; ok {
		return name
	}
	return string(s)
}

type Order struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	RestaurantID          uuid.UUID  `json:"restaurant_id" db:"restaurant_id"`
	CustomerID            string     `json:"customer_id" db:"customer_id"`
	Status                Status     `json:"status" db:"status"`
	Items                 []Item     `json:"items" db:"-"`
	TotalCents            int64      `json:"total_cents" db:"total_cents"`
	PaymentMethod         string     `json:"payment_method,omitempty" db:"payment_method"`
	PaymentLink           string     `json:"payment_link,omitempty" db:"payment_link"`
	PaymentID             string     `json:"payment_id,omitempty" db:"payment_id"`
	PlatformFeeCents      int64      `json:"platform_fee_cents" db:"platform_fee_cents"`
	RestaurantAmountCents int64      `json:"restaurant_amount_cents" db:"restaurant_amount_cents"`
	PaidAt                *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	DailySequence         int        `json:"daily_sequence" db:"daily_sequence"`
	SequenceDate          string     `json:"sequence_date,omitempty" db:"sequence_date"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

type Item struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrderID        uuid.UUID `json:"order_id" db:"order_id"`
	MenuItemID     uuid.UUID `json:"menu_item_id" db:"menu_item_id"`
	Name           string    `json:"name" db:"name"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents" db:"unit_price_cents"`
	Modifiers      string    `json:"modifiers,omitempty" db:"modifiers"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
