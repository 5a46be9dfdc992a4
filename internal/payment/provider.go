package payment

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

// ErrUpstream wraps provider transport failures. Callers retry via webhook
// redelivery; everything downstream of a retry must stay idempotent.
var ErrUpstream = errors.New("payment provider unavailable")

// SplitInstruction tells the provider how to divide the proceeds.
type SplitInstruction struct {
	PlatformFeeCents      int64
	RestaurantAmountCents int64
}

type CreatePaymentInput struct {
	OrderID     uuid.UUID
	AmountCents int64
	Method      string // "pix", "credit_card", ...
	Split       SplitInstruction
}

type CreatePaymentResult struct {
	PaymentID   string
	PaymentLink string
	QRCode      string
	Status      string
}

type Confirmation struct {
	Status                string
	PaidAt                time.Time
	AmountCents           int64
	PlatformFeeCents      int64
	RestaurantAmountCents int64
}

// Provider is the billing-vendor contract. This core never speaks HTTP to a
// provider directly; the concrete client lives outside it.
type Provider interface {
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*CreatePaymentResult, error)
	ConfirmPayment(ctx context.Context, paymentID string) (*Confirmation, error)
	CancelPayment(ctx context.Context, paymentID string) (bool, error)
}
