package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zapfood/zapfood/internal/catalog"
	"github.com/zapfood/zapfood/internal/idempotency"
)

var (
	ErrRestaurantClosed   = errors.New("restaurant is currently closed")
	ErrRestaurantInactive = errors.New("restaurant is not accepting orders")
	ErrItemUnavailable    = errors.New("menu item is not available")
)

type CreateItemInput struct {
	MenuItemID uuid.UUID
	Quantity   int
	Modifiers  string
}

type CreateInput struct {
	RestaurantID   uuid.UUID
	CustomerID     string
	Items          []CreateItemInput
	Status         Status // DRAFT or NEW
	IdempotencyKey string
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Order, error)
	// AttachPayment records the provider link for the order and moves it
	// into AWAITING_PAYMENT. Identical replays are no-ops.
	AttachPayment(ctx context.Context, id uuid.UUID, method, link, paymentID string) (*Order, error)
	// AdvanceStatus performs the restaurant-side moves (PREPARING, READY,
	// DELIVERED), consulting the per-restaurant unpaid-preparation flag.
	AdvanceStatus(ctx context.Context, id uuid.UUID, newStatus Status) (*Order, error)
}

type service struct {
	orders     Repository
	restaurant catalog.Repository
	idem       *idempotency.Store
	notifier   Notifier
}

func NewService(orders Repository, restaurants catalog.Repository, idem *idempotency.Store, notifier Notifier) Service {
	return &service{
		orders:     orders,
		restaurant: restaurants,
		idem:       idem,
		notifier:   notifier,
	}
}

// Create turns a finalized cart into a persisted order with its items.
// Calling it twice with the same idempotency key returns the same order and
// writes nothing the second time.
func (s *service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	if in.Status != StatusDraft && in.Status != StatusNew {
		return nil, fmt.Errorf("order: initial status must be DRAFT or NEW, got %s", in.Status)
	}
	if len(in.Items) == 0 {
		return nil, errors.New("order: must contain at least one item")
	}
	for _, item := range in.Items {
		if item.Quantity < 1 || item.Quantity > 99 {
			return nil, fmt.Errorf("order: item quantity must be between 1 and 99, got %d", item.Quantity)
		}
	}

	idemKey := ""
	if in.IdempotencyKey != "" {
		idemKey = "order:create:" + in.IdempotencyKey
		if existing, err := s.recoverExisting(ctx, idemKey, in); err == nil && existing != nil {
			log.Info().Stringer("order_id", existing.ID).Str("key", idemKey).Msg("order: create replay, returning existing order")
			return existing, nil
		}
	}

	restaurant, err := s.restaurant.GetRestaurant(ctx, in.RestaurantID)
	if err != nil {
		return nil, err
	}
	if !restaurant.Active {
		return nil, ErrRestaurantInactive
	}

	now := time.Now()
	open, err := restaurant.IsOpenAt(now)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, ErrRestaurantClosed
	}

	// Prices are snapshotted here; later menu changes never touch this order.
	// Any unavailable item rejects the whole order, there are no partials.
	items := make([]Item, 0, len(in.Items))
	total := decimal.Zero
	for _, itemIn := range in.Items {
		menuItem, err := s.restaurant.GetMenuItem(ctx, itemIn.MenuItemID)
		if err != nil {
			return nil, err
		}
		if !menuItem.Available || menuItem.RestaurantID != restaurant.ID {
			return nil, fmt.Errorf("%w: %s", ErrItemUnavailable, menuItem.Name)
		}

		line := decimal.NewFromInt(menuItem.PriceCents).Mul(decimal.NewFromInt(int64(itemIn.Quantity)))
		total = total.Add(line)
		items = append(items, Item{
			MenuItemID:     menuItem.ID,
			Name:           menuItem.Name,
			Quantity:       itemIn.Quantity,
			UnitPriceCents: menuItem.PriceCents,
			Modifiers:      itemIn.Modifiers,
		})
	}

	o := &Order{
		RestaurantID: restaurant.ID,
		CustomerID:   in.CustomerID,
		Status:       in.Status,
		Items:        items,
		TotalCents:   total.IntPart(),
	}
	if in.Status == StatusNew {
		date, err := restaurant.LocalDate(now)
		if err != nil {
			return nil, err
		}
		o.SequenceDate = date
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	if idemKey != "" {
		if err := s.idem.MarkProcessed(ctx, idemKey, o.ID.String()); err != nil {
			// The order exists; a lost marker only means a retry takes the
			// defensive recovery path instead of the cache hit.
			log.Warn().Err(err).Stringer("order_id", o.ID).Msg("order: failed to record idempotency key")
		}
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("restaurant_id", o.RestaurantID).
		Str("customer_id", o.CustomerID).
		Int64("total_cents", o.TotalCents).
		Int("daily_sequence", o.DailySequence).
		Msg("order: created")

	s.notifier.OrderCreated(ctx, o)
	return o, nil
}

// recoverExisting resolves a replayed create to the order the first call
// made. The cached order id is verified against the store before being
// trusted; if the cache was lost or points at an order that already moved
// past NEW, the customer's open orders for the restaurant are scanned
// instead.
func (s *service) recoverExisting(ctx context.Context, idemKey string, in CreateInput) (*Order, error) {
	processed, cached, err := s.idem.Check(ctx, idemKey)
	if err != nil || !processed {
		return nil, err
	}

	if cached != "" {
		if orderID, parseErr := uuid.FromString(cached); parseErr == nil {
			o, getErr := s.orders.GetByID(ctx, orderID)
			if getErr == nil && (o.Status == StatusDraft || o.Status == StatusNew) {
				return o, nil
			}
		}
	}

	o, findErr := s.orders.FindOpenOrder(ctx, in.CustomerID, in.RestaurantID,
		[]Status{StatusDraft, StatusNew, StatusAwaitingPayment})
	if findErr != nil {
		if errors.Is(findErr, ErrNotFound) {
			return nil, nil
		}
		return nil, findErr
	}
	return o, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return o, nil
	}

	previous := o.Status
	if err := o.Cancel(); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateCAS(ctx, o, previous); err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", o.ID).Str("from", previous.String()).Msg("order: cancelled")
	s.notifier.OrderCancelled(ctx, o)
	return o, nil
}

func (s *service) AttachPayment(ctx context.Context, id uuid.UUID, method, link, paymentID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := o.Status
	if err := o.UpdatePaymentInfo(method, link, paymentID); err != nil {
		return nil, err
	}
	if o.Status == previous {
		// Identical replay, nothing to persist.
		return o, nil
	}
	if err := s.orders.UpdateCAS(ctx, o, previous); err != nil {
		return nil, err
	}

	log.Info().
		Stringer("order_id", o.ID).
		Str("method", method).
		Str("payment_id", paymentID).
		Msg("order: payment attached")
	return o, nil
}

func (s *service) AdvanceStatus(ctx context.Context, id uuid.UUID, newStatus Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == newStatus {
		return o, nil
	}

	switch newStatus {
	case StatusPreparing:
		restaurant, err := s.restaurant.GetRestaurant(ctx, o.RestaurantID)
		if err != nil {
			return nil, err
		}
		if err := CanMarkPreparing(o.Status, restaurant.AllowUnpaidPreparation); err != nil {
			return nil, err
		}
		if restaurant.AllowUnpaidPreparation && o.Status != StatusPaid {
			log.Warn().
				Stringer("order_id", o.ID).
				Stringer("restaurant_id", restaurant.ID).
				Str("status", o.Status.String()).
				Msg("order: preparation started before payment under restaurant opt-in")
		}
	case StatusReady:
		if err := CanMarkReady(o.Status); err != nil {
			return nil, err
		}
	case StatusDelivered:
		if err := CanTransition(o.Status, newStatus); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("order: %s is not a restaurant-side status", newStatus)
	}

	previous := o.Status
	o.Status = newStatus
	o.UpdatedAt = time.Now().UTC()
	if err := s.orders.UpdateCAS(ctx, o, previous); err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", o.ID).Str("from", previous.String()).Str("to", newStatus.String()).Msg("order: status advanced")
	s.notifier.OrderStatusChanged(ctx, o, newStatus)
	return o, nil
}
