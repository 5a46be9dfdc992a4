package payment_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/zapfood/zapfood/internal/payment"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		totalCents     int64
		feePercent     string
		wantFee        int64
		wantRestaurant int64
	}{
		{totalCents: 4000, feePercent: "7.5", wantFee: 300, wantRestaurant: 3700},
		{totalCents: 4000, feePercent: "0", wantFee: 0, wantRestaurant: 4000},
		{totalCents: 4000, feePercent: "100", wantFee: 4000, wantRestaurant: 0},
		// 10.10 * 3.33% = 33.633¢ -> 34¢, half-up.
		{totalCents: 1010, feePercent: "3.33", wantFee: 34, wantRestaurant: 976},
		// 50¢ * 1% = 0.5¢ rounds up to 1¢.
		{totalCents: 50, feePercent: "1", wantFee: 1, wantRestaurant: 49},
		{totalCents: 0, feePercent: "7.5", wantFee: 0, wantRestaurant: 0},
		{totalCents: 1, feePercent: "7.5", wantFee: 0, wantRestaurant: 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_at_%s", tt.totalCents, tt.feePercent), func(t *testing.T) {
			fee, restaurant := payment.Split(tt.totalCents, decimal.RequireFromString(tt.feePercent))
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantRestaurant, restaurant)
		})
	}
}

// The split must reconcile exactly for any total and percentage: whatever
// the rounding does to the fee, fee + restaurant == total.
func TestSplit_SumsExactly(t *testing.T) {
	percents := []string{"0", "0.01", "1", "3.33", "7.5", "12.9", "50", "99.99", "100"}
	totals := []int64{0, 1, 7, 99, 100, 101, 4999, 12345, 1000000}

	for _, pct := range percents {
		feePercent := decimal.RequireFromString(pct)
		for _, total := range totals {
			fee, restaurant := payment.Split(total, feePercent)
			assert.Equal(t, total, fee+restaurant, "total=%d pct=%s", total, pct)
			assert.GreaterOrEqual(t, fee, int64(0))
			assert.GreaterOrEqual(t, restaurant, int64(0))
		}
	}
}

// Reproducibility: the same inputs always produce the same split.
func TestSplit_Deterministic(t *testing.T) {
	feePercent := decimal.RequireFromString("7.5")
	firstFee, firstRestaurant := payment.Split(12345, feePercent)
	for i := 0; i < 10; i++ {
		fee, restaurant := payment.Split(12345, feePercent)
		assert.Equal(t, firstFee, fee)
		assert.Equal(t, firstRestaurant, restaurant)
	}
}
