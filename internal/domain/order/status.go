package order

import "slices"

// Status is the lifecycle state of an order.
type Status string

// Order statuses.
const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
	StatusRefunded   Status = "Refunded"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
}

// transitions is the complete table of forward moves. Statuses without an
// entry are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
}

// ParseStatus validates s against the status enumeration.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// RequiresPayment reports whether reaching s implies the order was paid.
func (s Status) RequiresPayment() bool {
	switch s {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the table allows moving from current to
// target. Staying in place is always allowed.
func CanTransition(current, target Status) bool {
	if current == target {
		return true
	}
	return slices.Contains(transitions[current], target)
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return slices.Clone(transitions[s])
}
