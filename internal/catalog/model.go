package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrMenuItemNotFound   = errors.New("menu item not found")
)

// OpeningWindow is one open interval on a weekday, in the restaurant's local
// time. Windows crossing midnight ("22:00"–"02:00") spill into the next day.
type OpeningWindow struct {
	Weekday time.Weekday `json:"weekday"`
	Open    string       `json:"open"`  // "HH:MM"
	Close   string       `json:"close"` // "HH:MM"
}

type Restaurant struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	Name     string          `json:"name" db:"name"`
	Phone    string          `json:"phone" db:"phone"`
	Active   bool            `json:"active" db:"active"`
	Timezone string          `json:"timezone" db:"timezone"`
	Hours    []OpeningWindow `json:"hours" db:"-"`
	// FeePercent is the platform's cut of every payment, e.g. "7.5".
	FeePercent decimal.Decimal `json:"fee_percent" db:"fee_percent"`
	// AllowUnpaidPreparation lets this restaurant start preparing before the
	// payment is confirmed. Explicit opt-in, default false.
	AllowUnpaidPreparation bool      `json:"allow_unpaid_preparation" db:"allow_unpaid_preparation"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

type MenuItem struct {
	ID           uuid.UUID `json:"id" db:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id" db:"restaurant_id"`
	Name         string    `json:"name" db:"name"`
	Category     string    `json:"category,omitempty" db:"category"`
	PriceCents   int64     `json:"price_cents" db:"price_cents"`
	Available    bool      `json:"available" db:"available"`
}

// Location resolves the restaurant's IANA timezone.
func (r *Restaurant) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("catalog: restaurant %s has invalid timezone %q: %w", r.ID, r.Timezone, err)
	}
	return loc, nil
}

// IsOpenAt reports whether the restaurant is open at the given instant,
// evaluated in its own timezone. No configured hours means always open.
func (r *Restaurant) IsOpenAt(at time.Time) (bool, error) {
	if len(r.Hours) == 0 {
		return true, nil
	}

	loc, err := r.Location()
	if err != nil {
		return false, err
	}
	local := at.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	for _, w := range r.Hours {
		open, err := parseClock(w.Open)
		if err != nil {
			return false, err
		}
		closeAt, err := parseClock(w.Close)
		if err != nil {
			return false, err
		}

		if closeAt > open {
			if w.Weekday == local.Weekday() && minutes >= open && minutes < closeAt {
				return true, nil
			}
			continue
		}

		// Window crosses midnight: "open..24h" belongs to w.Weekday, the
		// "0h..close" remainder to the following day.
		if w.Weekday == local.Weekday() && minutes >= open {
			return true, nil
		}
		if (w.Weekday+1)%7 == local.Weekday() && minutes < closeAt {
			return true, nil
		}
	}
	return false, nil
}

// LocalDate formats the instant as a calendar date in the restaurant's
// timezone, the scope of daily order sequence numbers.
func (r *Restaurant) LocalDate(at time.Time) (string, error) {
	loc, err := r.Location()
	if err != nil {
		return "", err
	}
	return at.In(loc).Format("2006-01-02"), nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("catalog: invalid clock value %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("catalog: invalid clock value %q", s)
	}
	return h*60 + m, nil
}
