package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zapfood/zapfood/internal/catalog"
	"github.com/zapfood/zapfood/internal/idempotency"
	"github.com/zapfood/zapfood/internal/order"
)

// Event is an inbound payment-provider webhook, already authenticated and
// decoded by the transport layer.
type Event struct {
	Provider  string
	EventID   string
	Type      string
	PaymentID string
}

// Event types that mean "payment confirmed". Everything else is acknowledged
// and marked seen without touching any order.
var confirmedEventTypes = map[string]bool{
	"payment.confirmed": true,
	"payment.approved":  true,
}

// ReconcilerConfig carries the split rule explicitly; the flow never reads
// ambient process state at call time.
type ReconcilerConfig struct {
	// DefaultFeePercent applies when the restaurant has no fee configured
	// and the provider confirmation carries no usable split.
	DefaultFeePercent decimal.Decimal
}

// Reconciler applies provider webhooks to orders. Every step tolerates
// duplicate event delivery and concurrent deliveries of the same event;
// idempotency keys are only marked processed after the whole flow succeeds,
// so a crash mid-flow causes a retry, never a silently skipped payment.
type Reconciler struct {
	orders      order.Repository
	restaurants catalog.Repository
	provider    Provider
	idem        *idempotency.Store
	notifier    order.Notifier
	cfg         ReconcilerConfig
}

func NewReconciler(orders order.Repository, restaurants catalog.Repository, provider Provider, idem *idempotency.Store, notifier order.Notifier, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		orders:      orders,
		restaurants: restaurants,
		provider:    provider,
		idem:        idem,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// HandleEvent processes one webhook delivery. A nil return means the event
// is acknowledged; an error means the provider should redeliver.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	if ev.EventID == "" || ev.PaymentID == "" {
		return fmt.Errorf("payment: webhook event missing event id or payment id")
	}

	eventKey := fmt.Sprintf("webhook:%s:%s", ev.Provider, ev.EventID)
	if seen, _, err := r.idem.Check(ctx, eventKey); err != nil {
		return err
	} else if seen {
		log.Debug().Str("event_id", ev.EventID).Msg("payment: duplicate webhook event, acknowledging")
		return nil
	}

	if !confirmedEventTypes[ev.Type] {
		log.Debug().Str("event_id", ev.EventID).Str("type", ev.Type).Msg("payment: ignoring non-confirmation event")
		return r.idem.MarkProcessed(ctx, eventKey, "")
	}

	// The payment id is the primary idempotency key: one logical payment may
	// generate several provider events.
	paymentKey := "payment:confirm:" + ev.PaymentID
	if confirmed, _, err := r.idem.Check(ctx, paymentKey); err != nil {
		return err
	} else if confirmed {
		log.Debug().Str("payment_id", ev.PaymentID).Msg("payment: already confirmed, acknowledging")
		return r.idem.MarkProcessed(ctx, eventKey, "")
	}

	o, err := r.orders.GetByPaymentID(ctx, ev.PaymentID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// Acknowledge so the provider stops redelivering, but make the
			// anomaly loud for operators.
			log.Error().
				Str("payment_id", ev.PaymentID).
				Str("event_id", ev.EventID).
				Msg("payment: webhook for unknown payment id, manual review required")
			return r.idem.MarkProcessed(ctx, eventKey, "")
		}
		return err
	}

	if o.Status == order.StatusPaid {
		return r.markDone(ctx, eventKey, paymentKey, o)
	}

	conf, err := r.provider.ConfirmPayment(ctx, ev.PaymentID)
	if err != nil {
		return fmt.Errorf("%w: confirm %s: %v", ErrUpstream, ev.PaymentID, err)
	}

	feeCents, restaurantCents := r.resolveSplit(ctx, o, conf)

	transitioned, err := r.applyConfirmation(ctx, o, ev.PaymentID, feeCents, restaurantCents, conf)
	if err != nil {
		return err
	}

	// The kitchen hears about the payment exactly once: only the call whose
	// write actually performed the AWAITING_PAYMENT -> PAID transition.
	if transitioned {
		r.notifier.OrderStatusChanged(ctx, o, order.StatusPaid)
		log.Info().
			Stringer("order_id", o.ID).
			Str("payment_id", ev.PaymentID).
			Int64("platform_fee_cents", feeCents).
			Int64("restaurant_amount_cents", restaurantCents).
			Msg("payment: confirmed")
	}

	return r.markDone(ctx, eventKey, paymentKey, o)
}

// applyConfirmation writes the confirmation with a compare-and-set on the
// status the order was read at, re-reading and re-deciding when a concurrent
// reconciliation won the race. Reports whether this call performed the
// transition into PAID.
func (r *Reconciler) applyConfirmation(ctx context.Context, o *order.Order, paymentID string, feeCents, restaurantCents int64, conf *Confirmation) (bool, error) {
	for {
		previous := o.Status
		if previous == order.StatusPaid {
			// A concurrent delivery already applied it; do not re-apply fees.
			return false, nil
		}

		if err := o.ConfirmPayment(paymentID, feeCents, restaurantCents, conf.PaidAt); err != nil {
			return false, err
		}

		err := r.orders.UpdateCAS(ctx, o, previous)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, order.ErrStale) {
			return false, err
		}

		fresh, readErr := r.orders.GetByID(ctx, o.ID)
		if readErr != nil {
			return false, readErr
		}
		*o = *fresh
	}
}

func (r *Reconciler) resolveSplit(ctx context.Context, o *order.Order, conf *Confirmation) (feeCents, restaurantCents int64) {
	// Provider-reported splits win when they add up; otherwise the split is
	// recomputed locally from the configured percentage.
	if conf.PlatformFeeCents+conf.RestaurantAmountCents == o.TotalCents &&
		(conf.PlatformFeeCents != 0 || conf.RestaurantAmountCents != 0) {
		return conf.PlatformFeeCents, conf.RestaurantAmountCents
	}

	feePercent := r.cfg.DefaultFeePercent
	if restaurant, err := r.restaurants.GetRestaurant(ctx, o.RestaurantID); err == nil && !restaurant.FeePercent.IsZero() {
		feePercent = restaurant.FeePercent
	}
	return Split(o.TotalCents, feePercent)
}

// markDone records both idempotency keys. Failures are surfaced: these
// writes guard against double-processing, so they must not fail open.
func (r *Reconciler) markDone(ctx context.Context, eventKey, paymentKey string, o *order.Order) error {
	if err := r.idem.MarkProcessed(ctx, paymentKey, o.ID.String()); err != nil {
		return err
	}
	return r.idem.MarkProcessed(ctx, eventKey, o.ID.String())
}
