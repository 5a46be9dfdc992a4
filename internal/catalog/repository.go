package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the read-only catalog surface this service consumes.
// Restaurant and menu management writes live elsewhere.
type Repository interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (*Restaurant, error)
	ListActiveRestaurants(ctx context.Context) ([]Restaurant, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (*MenuItem, error)
	ListMenu(ctx context.Context, restaurantID uuid.UUID) ([]MenuItem, error)
	SearchMenu(ctx context.Context, restaurantID uuid.UUID, name string) ([]MenuItem, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const restaurantColumns = `id, name, phone, active, timezone, hours, fee_percent, allow_unpaid_preparation, created_at`

func (r *postgresRepository) GetRestaurant(ctx context.Context, id uuid.UUID) (*Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = $1`

	rst, err := scanRestaurant(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("catalog: select restaurant %s: %w", id, err)
	}
	return rst, nil
}

func (r *postgresRepository) ListActiveRestaurants(ctx context.Context) ([]Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE active ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := make([]Restaurant, 0)
	for rows.Next() {
		rst, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan restaurant: %w", err)
		}
		restaurants = append(restaurants, *rst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate restaurants: %w", err)
	}
	return restaurants, nil
}

func (r *postgresRepository) GetMenuItem(ctx context.Context, id uuid.UUID) (*MenuItem, error) {
	query := `
		SELECT id, restaurant_id, name, category, price_cents, available
		FROM menu_items
		WHERE id = $1
	`

	var item MenuItem
	err := r.db.QueryRow(ctx, query, id).Scan(
		&item.ID,
		&item.RestaurantID,
		&item.Name,
		&item.Category,
		&item.PriceCents,
		&item.Available,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMenuItemNotFound
		}
		return nil, fmt.Errorf("catalog: select menu item %s: %w", id, err)
	}
	return &item, nil
}

func (r *postgresRepository) ListMenu(ctx context.Context, restaurantID uuid.UUID) ([]MenuItem, error) {
	query := `
		SELECT id, restaurant_id, name, category, price_cents, available
		FROM menu_items
		WHERE restaurant_id = $1 AND available
		ORDER BY category, name
	`
	return r.queryMenuItems(ctx, query, restaurantID)
}

// SearchMenu does a case-insensitive substring match on item names, the
// lookup backing ambiguity detection in the conversational flow.
func (r *postgresRepository) SearchMenu(ctx context.Context, restaurantID uuid.UUID, name string) ([]MenuItem, error) {
	query := `
		SELECT id, restaurant_id, name, category, price_cents, available
		FROM menu_items
		WHERE restaurant_id = $1 AND available AND name ILIKE '%' || $2 || '%'
		ORDER BY name
	`
	return r.queryMenuItems(ctx, query, restaurantID, name)
}

func (r *postgresRepository) queryMenuItems(ctx context.Context, query string, args ...any) ([]MenuItem, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query menu items: %w", err)
	}
	defer rows.Close()

	items := make([]MenuItem, 0)
	for rows.Next() {
		var item MenuItem
		err := rows.Scan(
			&item.ID,
			&item.RestaurantID,
			&item.Name,
			&item.Category,
			&item.PriceCents,
			&item.Available,
		)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate menu items: %w", err)
	}
	return items, nil
}

func scanRestaurant(row pgx.Row) (*Restaurant, error) {
	var (
		rst      Restaurant
		hoursRaw []byte
	)
	err := row.Scan(
		&rst.ID,
		&rst.Name,
		&rst.Phone,
		&rst.Active,
		&rst.Timezone,
		&hoursRaw,
		&rst.FeePercent,
		&rst.AllowUnpaidPreparation,
		&rst.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(hoursRaw) > 0 {
		if err := json.Unmarshal(hoursRaw, &rst.Hours); err != nil {
			return nil, fmt.Errorf("invalid hours payload: %w", err)
		}
	}
	return &rst, nil
}
