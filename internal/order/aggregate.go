package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrPaymentAlreadySet means a different payment link is already attached.
	ErrPaymentAlreadySet = errors.New("order already has a different payment link")

	// ErrPaymentConflict means a second, different payment id arrived for an
	// order that already recorded one. Two payments for one order is a serious
	// anomaly and must never be absorbed silently.
	ErrPaymentConflict = errors.New("order already confirmed with a different payment id")

	// ErrCancelPaid: a paid order is refunded out-of-band, never cancelled.
	ErrCancelPaid = errors.New("paid order cannot be cancelled, refund required")

	// ErrCancelInPreparation: the kitchen already started, cancellation is closed.
	ErrCancelInPreparation = errors.New("order already in preparation cannot be cancelled")
)

// The mutators below implement the replay contract: calling any of them twice
// with identical arguments is a no-op the second time, and a replay with
// conflicting arguments fails without mutating the order. Both message
// redelivery and payment-webhook redelivery depend on this.

// UpdateStatus moves the order to newStatus. Re-applying the current status
// is a no-op, including on terminal states.
func (o *Order) UpdateStatus(newStatus Status) error {
	if o.Status == newStatus {
		return nil
	}
	if err := CanTransition(o.Status, newStatus); err != nil {
		return err
	}
	o.Status = newStatus
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePaymentInfo attaches the payment method, link and provider payment id
// and moves a DRAFT/NEW order into AWAITING_PAYMENT.
func (o *Order) UpdatePaymentInfo(method, link, paymentID string) error {
	if o.PaymentLink != "" && o.PaymentLink != link {
		return ErrPaymentAlreadySet
	}

	// Identical replay after the transition already happened.
	if (o.Status == StatusAwaitingPayment || o.Status == StatusPaid) &&
		o.PaymentLink == link && o.PaymentMethod == method {
		return nil
	}

	if err := CanRequestPayment(o.Status); err != nil {
		return err
	}

	o.PaymentMethod = method
	o.PaymentLink = link
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	o.Status = StatusAwaitingPayment
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// ConfirmPayment records the provider confirmation and the fee split and
// moves the order to PAID.
func (o *Order) ConfirmPayment(paymentID string, platformFeeCents, restaurantAmountCents int64, paidAt time.Time) error {
	if o.PaymentID != "" && o.PaymentID != paymentID {
		return ErrPaymentConflict
	}

	if o.PaymentID == paymentID && o.Status == StatusPaid {
		return nil
	}

	// Same payment id but status lagging behind (a crash between the fee
	// write and the status write): advance status only, keep recorded fees.
	if o.PaymentID == paymentID && o.PaidAt != nil {
		if err := CanConfirmPayment(o.Status); err != nil {
			return err
		}
		o.Status = StatusPaid
		o.UpdatedAt = time.Now().UTC()
		return nil
	}

	if err := CanConfirmPayment(o.Status); err != nil {
		return err
	}

	o.PaymentID = paymentID
	o.PlatformFeeCents = platformFeeCents
	o.RestaurantAmountCents = restaurantAmountCents
	paid := paidAt.UTC()
	o.PaidAt = &paid
	o.Status = StatusPaid
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel marks the order CANCELLED. Orders are never deleted; this is the
// deletion surrogate.
func (o *Order) Cancel() error {
	if o.Status == StatusCancelled {
		return nil
	}

	switch o.Status {
	case StatusPaid:
		return ErrCancelPaid
	case StatusPreparing, StatusReady:
		return ErrCancelInPreparation
	}

	if err := CanCancel(o.Status); err != nil {
		return err
	}
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return nil
}
