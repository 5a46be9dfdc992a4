package order

import "fmt"

// InvalidTransitionError reports a refused status change, carrying both ends
// so handlers can tell the user what state the order is actually in.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from %s to %s", e.From, e.To)
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusDraft: {
		StatusNew:       true,
		StatusCancelled: true,
	},
	StatusNew: {
		StatusAwaitingPayment: true,
		StatusCancelled:       true,
	},
	StatusAwaitingPayment: {
		StatusPaid:      true,
		StatusCancelled: true,
	},
	StatusPaid: {
		StatusPreparing: true,
	},
	StatusPreparing: {
		StatusReady: true,
	},
	StatusReady: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition checks the raw transition table. The Can* guards below are
// the named rules the aggregate consults; all are pure and side-effect free.
func CanTransition(from, to Status) error {
	if allowedTransitions[from][to] {
		return nil
	}
	return &InvalidTransitionError{From: from, To: to}
}

// CanModify allows item/content changes only before payment is in motion.
func CanModify(s Status) error {
	if s == StatusDraft || s == StatusNew {
		return nil
	}
	return &InvalidTransitionError{From: s, To: s}
}

func CanCancel(s Status) error {
	switch s {
	case StatusDraft, StatusNew, StatusAwaitingPayment:
		return nil
	}
	return &InvalidTransitionError{From: s, To: StatusCancelled}
}

func CanRequestPayment(s Status) error {
	if s == StatusDraft || s == StatusNew {
		return nil
	}
	return &InvalidTransitionError{From: s, To: StatusAwaitingPayment}
}

func CanConfirmPayment(s Status) error {
	if s == StatusAwaitingPayment {
		return nil
	}
	return &InvalidTransitionError{From: s, To: StatusPaid}
}

// CanMarkPreparing normally requires PAID. Restaurants that explicitly opt in
// (an auditable per-restaurant flag, never a default) may start preparation
// while payment is still pending.
func CanMarkPreparing(s Status, allowUnpaid bool) error {
	if s == StatusPaid {
		return nil
	}
	if allowUnpaid && (s == StatusNew || s == StatusAwaitingPayment) {
		return nil
	}
	return &InvalidTransitionError{From: s, To: StatusPreparing}
}

func CanMarkReady(s Status) error {
	if s == StatusPreparing {
		return nil
	}
	return &InvalidTransitionError{From: s, To: StatusReady}
}
