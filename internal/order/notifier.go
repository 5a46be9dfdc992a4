package order

import "context"

// Notifier is the fire-and-forget sink for order events: the kitchen's
// channel, the customer's chat, whatever the deployment wires in. Failures
// here never roll back the mutation that triggered them, so the interface
// returns nothing.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderStatusChanged(ctx context.Context, o *Order, newStatus Status)
	OrderCancelled(ctx context.Context, o *Order)
}
