package domain

import (
	"errors"
	"fmt"
	"strings"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment confirmation or manual fulfilment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded (or an operator accepted the order).
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was abandoned, rejected, or refunded. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ErrIllegalTransition is returned when a status change is not present in the
// transition table. The order's current status is preserved; callers treat the
// attempt as a rejected no-op.
var ErrIllegalTransition = errors.New("order: illegal status transition")

// ErrUnknownStatus is returned when a status value is not part of the lifecycle.
var ErrUnknownStatus = errors.New("order: unknown status")

// orderTransitions is the complete transition table. Absence means rejection;
// in particular the self-transition confirmed->confirmed is absent, which is
// what makes duplicate payment callbacks harmless.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// ParseOrderStatus normalises a raw status value.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := orderTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return status, nil
}

// Terminal reports whether no transition leaves the status.
func (s OrderStatus) Terminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether from -> to is present in the transition table.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to against the table. It is the single guard
// for every status mutation; no other code path may write an order status.
func Transition(from, to OrderStatus) error {
	if _, ok := orderTransitions[from]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if _, ok := orderTransitions[to]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// RestocksOnCancel reports whether cancelling out of the given status must
// return the order's line-item quantities to stock. Once delivered (terminal)
// or already cancelled there is nothing to restore.
func RestocksOnCancel(from OrderStatus) bool {
	switch from {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped:
		return true
	}
	return false
}
