package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrStale is returned by the conditional updates when the row no longer
// matches the status the caller read. The caller must re-read and decide
// again; blindly retrying the same write would reintroduce the race the
// compare-and-set exists to close.
var ErrStale = errors.New("order was modified concurrently")

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	// FindOpenOrder returns the customer's most recent order for the
	// restaurant in one of the given statuses, or ErrNotFound.
	FindOpenOrder(ctx context.Context, customerID string, restaurantID uuid.UUID, statuses []Status) (*Order, error)
	// UpdateCAS persists the order's mutable fields only if the stored status
	// still equals expectedStatus, returning ErrStale otherwise.
	UpdateCAS(ctx context.Context, o *Order, expectedStatus Status) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, restaurant_id, customer_id, status, total_cents, payment_method,
	payment_link, payment_id, platform_fee_cents, restaurant_amount_cents, paid_at,
	daily_sequence, sequence_date, created_at, updated_at`

// Create inserts the order and its items in one transaction. Orders entering
// as NEW get the next daily sequence number for their restaurant and local
// calendar day; the restaurant row is locked for the duration of the insert
// so concurrent creations cannot draw the same number.
func (r *postgresRepository) Create(ctx context.Context, o *Order) (err error) {
	if o.ID == uuid.Nil {
		id, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("order: generate id: %w", genErr)
		}
		o.ID = id
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("order: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("order: rollback failed")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("order: commit transaction: %w", commitErr)
		}
	}()

	if o.Status == StatusNew && o.SequenceDate != "" {
		seq, seqErr := nextDailySequence(ctx, tx, o.RestaurantID, o.SequenceDate)
		if seqErr != nil {
			return seqErr
		}
		o.DailySequence = seq
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	insertOrder := `
		INSERT INTO orders (id, restaurant_id, customer_id, status, total_cents, payment_method,
			payment_link, payment_id, platform_fee_cents, restaurant_amount_cents, paid_at,
			daily_sequence, sequence_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)
	`
	_, err = tx.Exec(ctx, insertOrder,
		o.ID,
		o.RestaurantID,
		o.CustomerID,
		string(o.Status),
		o.TotalCents,
		o.PaymentMethod,
		o.PaymentLink,
		o.PaymentID,
		o.PlatformFeeCents,
		o.RestaurantAmountCents,
		o.PaidAt,
		o.DailySequence,
		o.SequenceDate,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("order: insert order: %w", err)
	}

	insertItem := `
		INSERT INTO order_items (id, order_id, menu_item_id, name, quantity, unit_price_cents, modifiers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range o.Items {
		item := &o.Items[i]
		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("order: generate item id: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = o.ID
		item.CreatedAt = now

		_, err = tx.Exec(ctx, insertItem,
			item.ID,
			item.OrderID,
			item.MenuItemID,
			item.Name,
			item.Quantity,
			item.UnitPriceCents,
			item.Modifiers,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("order: insert item for order %s: %w", o.ID, err)
		}
	}
	return nil
}

func nextDailySequence(ctx context.Context, tx pgx.Tx, restaurantID uuid.UUID, date string) (int, error) {
	// The lock serializes sequence assignment per restaurant without
	// touching order rows.
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM restaurants WHERE id = $1 FOR UPDATE`, restaurantID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("order: restaurant %s not found for sequence lock", restaurantID)
		}
		return 0, fmt.Errorf("order: lock restaurant %s: %w", restaurantID, err)
	}

	var seq int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(daily_sequence), 0) + 1
		FROM orders
		WHERE restaurant_id = $1 AND sequence_date = $2
	`, restaurantID, date).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("order: compute daily sequence: %w", err)
	}
	return seq, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("order: select order %s: %w", id, err)
	}

	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("order: select order by payment id %s: %w", paymentID, err)
	}

	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) FindOpenOrder(ctx context.Context, customerID string, restaurantID uuid.UUID, statuses []Status) (*Order, error) {
	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, string(s))
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1 AND restaurant_id = $2 AND status = ANY($3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	o, err := scanOrder(r.db.QueryRow(ctx, query, customerID, restaurantID, raw))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("order: find open order for customer %s: %w", customerID, err)
	}

	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) UpdateCAS(ctx context.Context, o *Order, expectedStatus Status) error {
	query := `
		UPDATE orders
		SET status = $1, payment_method = $2, payment_link = $3, payment_id = $4,
			platform_fee_cents = $5, restaurant_amount_cents = $6, paid_at = $7, updated_at = $8
		WHERE id = $9 AND status = $10
	`
	tag, err := r.db.Exec(ctx, query,
		string(o.Status),
		o.PaymentMethod,
		o.PaymentLink,
		o.PaymentID,
		o.PlatformFeeCents,
		o.RestaurantAmountCents,
		o.PaidAt,
		o.UpdatedAt,
		o.ID,
		string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("order: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or another writer advanced it first.
		var exists bool
		if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); checkErr == nil && !exists {
			return ErrNotFound
		}
		return ErrStale
	}
	return nil
}

func (r *postgresRepository) loadItems(ctx context.Context, o *Order) error {
	query := `
		SELECT id, order_id, menu_item_id, name, quantity, unit_price_cents, modifiers, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, o.ID)
	if err != nil {
		return fmt.Errorf("order: query items for order %s: %w", o.ID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.MenuItemID,
			&item.Name,
			&item.Quantity,
			&item.UnitPriceCents,
			&item.Modifiers,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("order: scan item for order %s: %w", o.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("order: iterate items for order %s: %w", o.ID, err)
	}
	o.Items = items
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o            Order
		status       string
		sequenceDate *string
	)
	err := row.Scan(
		&o.ID,
		&o.RestaurantID,
		&o.CustomerID,
		&status,
		&o.TotalCents,
		&o.PaymentMethod,
		&o.PaymentLink,
		&o.PaymentID,
		&o.PlatformFeeCents,
		&o.RestaurantAmountCents,
		&o.PaidAt,
		&o.DailySequence,
		&sequenceDate,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if sequenceDate != nil {
		o.SequenceDate = *sequenceDate
	}
	return &o, nil
}
