package notify

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/zapfood/zapfood/internal/order"
)

// LogNotifier is the default order.Notifier sink: it only writes structured
// logs. Real deployments decorate or replace it.
type LogNotifier struct{}

var _ order.Notifier = (*LogNotifier)(nil)

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) OrderCreated(_ context.Context, o *order.Order) {
	log.Info().
		Stringer("order_id", o.ID).
		Stringer("restaurant_id", o.RestaurantID).
		Int("daily_sequence", o.DailySequence).
		Msg("notify: order created")
}

func (n *LogNotifier) OrderStatusChanged(_ context.Context, o *order.Order, newStatus order.Status) {
	log.Info().
		Stringer("order_id", o.ID).
		Str("status", newStatus.String()).
		Str("status_display", newStatus.Display()).
		Msg("notify: order status changed")
}

func (n *LogNotifier) OrderCancelled(_ context.Context, o *order.Order) {
	log.Info().
		Stringer("order_id", o.ID).
		Stringer("restaurant_id", o.RestaurantID).
		Msg("notify: order cancelled")
}
