package order_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapfood/zapfood/internal/order"
)

// Every mutator is exercised on both halves of the replay contract: an
// identical second call is a no-op, a conflicting second call fails without
// touching the order.

func TestUpdateStatus(t *testing.T) {
	t.Run("same_status_is_noop", func(t *testing.T) {
		o := &order.Order{Status: order.StatusCancelled}
		assert.NoError(t, o.UpdateStatus(order.StatusCancelled))
		assert.Equal(t, order.StatusCancelled, o.Status)
	})

	t.Run("valid_transition", func(t *testing.T) {
		o := &order.Order{Status: order.StatusNew}
		assert.NoError(t, o.UpdateStatus(order.StatusAwaitingPayment))
		assert.Equal(t, order.StatusAwaitingPayment, o.Status)
	})

	t.Run("terminal_state_refuses_other_statuses", func(t *testing.T) {
		o := &order.Order{Status: order.StatusDelivered}
		assert.Error(t, o.UpdateStatus(order.StatusPreparing))
		assert.Equal(t, order.StatusDelivered, o.Status)
	})
}

func TestUpdatePaymentInfo(t *testing.T) {
	t.Run("first_call_transitions", func(t *testing.T) {
		o := &order.Order{Status: order.StatusNew}
		require.NoError(t, o.UpdatePaymentInfo("pix", "https://pay/abc", "pay_1"))
		assert.Equal(t, order.StatusAwaitingPayment, o.Status)
		assert.Equal(t, "https://pay/abc", o.PaymentLink)
		assert.Equal(t, "pay_1", o.PaymentID)
	})

	t.Run("identical_replay_is_noop", func(t *testing.T) {
		o := &order.Order{Status: order.StatusNew}
		require.NoError(t, o.UpdatePaymentInfo("pix", "https://pay/abc", "pay_1"))
		updatedAt := o.UpdatedAt

		assert.NoError(t, o.UpdatePaymentInfo("pix", "https://pay/abc", "pay_1"))
		assert.Equal(t, order.StatusAwaitingPayment, o.Status)
		assert.Equal(t, updatedAt, o.UpdatedAt)
	})

	t.Run("different_link_fails", func(t *testing.T) {
		o := &order.Order{Status: order.StatusNew}
		require.NoError(t, o.UpdatePaymentInfo("pix", "https://pay/abc", "pay_1"))

		err := o.UpdatePaymentInfo("pix", "https://pay/other", "pay_2")
		assert.ErrorIs(t, err, order.ErrPaymentAlreadySet)
		assert.Equal(t, "https://pay/abc", o.PaymentLink)
	})

	t.Run("paid_order_with_different_link_fails", func(t *testing.T) {
		o := &order.Order{Status: order.StatusPaid, PaymentLink: "https://pay/abc", PaymentMethod: "pix"}
		err := o.UpdatePaymentInfo("pix", "https://pay/new", "pay_9")
		assert.ErrorIs(t, err, order.ErrPaymentAlreadySet)
	})

	t.Run("paid_order_identical_replay_is_noop", func(t *testing.T) {
		o := &order.Order{Status: order.StatusPaid, PaymentLink: "https://pay/abc", PaymentMethod: "pix"}
		assert.NoError(t, o.UpdatePaymentInfo("pix", "https://pay/abc", ""))
		assert.Equal(t, order.StatusPaid, o.Status)
	})
}

func TestConfirmPayment(t *testing.T) {
	paidAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("confirms_from_awaiting_payment", func(t *testing.T) {
		o := &order.Order{Status: order.StatusAwaitingPayment, TotalCents: 4000}
		require.NoError(t, o.ConfirmPayment("pay_1", 300, 3700, paidAt))
		assert.Equal(t, order.StatusPaid, o.Status)
		assert.Equal(t, int64(300), o.PlatformFeeCents)
		assert.Equal(t, int64(3700), o.RestaurantAmountCents)
		require.NotNil(t, o.PaidAt)
		assert.Equal(t, paidAt, *o.PaidAt)
	})

	t.Run("identical_replay_is_noop", func(t *testing.T) {
		o := &order.Order{Status: order.StatusAwaitingPayment, TotalCents: 4000}
		require.NoError(t, o.ConfirmPayment("pay_1", 300, 3700, paidAt))

		// A second delivery with the same arguments must not re-apply fees.
		assert.NoError(t, o.ConfirmPayment("pay_1", 300, 3700, paidAt))
		assert.Equal(t, order.StatusPaid, o.Status)
		assert.Equal(t, int64(300), o.PlatformFeeCents)
		assert.Equal(t, int64(3700), o.RestaurantAmountCents)
	})

	t.Run("different_payment_id_fails_without_mutation", func(t *testing.T) {
		o := &order.Order{Status: order.StatusAwaitingPayment, TotalCents: 4000}
		require.NoError(t, o.ConfirmPayment("pay_1", 300, 3700, paidAt))

		err := o.ConfirmPayment("pay_2", 999, 3001, paidAt)
		assert.ErrorIs(t, err, order.ErrPaymentConflict)
		assert.Equal(t, "pay_1", o.PaymentID)
		assert.Equal(t, int64(300), o.PlatformFeeCents)
		assert.Equal(t, order.StatusPaid, o.Status)
	})

	t.Run("matching_id_with_lagging_status_advances_status_only", func(t *testing.T) {
		// A crash after the fee write but before the status write leaves the
		// order with PaidAt set and status still AWAITING_PAYMENT.
		paid := paidAt
		o := &order.Order{
			Status:                order.StatusAwaitingPayment,
			PaymentID:             "pay_1",
			PlatformFeeCents:      300,
			RestaurantAmountCents: 3700,
			PaidAt:                &paid,
		}
		require.NoError(t, o.ConfirmPayment("pay_1", 0, 0, time.Now()))
		assert.Equal(t, order.StatusPaid, o.Status)
		assert.Equal(t, int64(300), o.PlatformFeeCents, "recorded fees must survive the replay")
		assert.Equal(t, paidAt, *o.PaidAt)
	})

	t.Run("wrong_status_fails", func(t *testing.T) {
		o := &order.Order{Status: order.StatusNew}
		err := o.ConfirmPayment("pay_1", 300, 3700, paidAt)
		var invalid *order.InvalidTransitionError
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name       string
		status     order.Status
		wantErr    error
		wantStatus order.Status
	}{
		{name: "draft", status: order.StatusDraft, wantStatus: order.StatusCancelled},
		{name: "new", status: order.StatusNew, wantStatus: order.StatusCancelled},
		{name: "awaiting_payment", status: order.StatusAwaitingPayment, wantStatus: order.StatusCancelled},
		{name: "already_cancelled_is_noop", status: order.StatusCancelled, wantStatus: order.StatusCancelled},
		{name: "paid_requires_refund", status: order.StatusPaid, wantErr: order.ErrCancelPaid, wantStatus: order.StatusPaid},
		{name: "preparing", status: order.StatusPreparing, wantErr: order.ErrCancelInPreparation, wantStatus: order.StatusPreparing},
		{name: "ready", status: order.StatusReady, wantErr: order.ErrCancelInPreparation, wantStatus: order.StatusReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &order.Order{Status: tt.status}
			err := o.Cancel()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, o.Status)
		})
	}
}
