package domain

import (
	"time"
)

// PaymentMethod enumerates the accepted ways to settle an order.
type PaymentMethod string

const (
	// PaymentMethodVNPay routes the customer through the VNPay hosted page.
	PaymentMethodVNPay PaymentMethod = "vnpay"
	// PaymentMethodMoMo routes the customer through the MoMo hosted page.
	PaymentMethodMoMo PaymentMethod = "momo"
	// PaymentMethodStripe routes the customer through a Stripe Checkout session.
	PaymentMethodStripe PaymentMethod = "stripe"
	// PaymentMethodCOD settles in cash on delivery; no gateway involved.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodBankTransfer settles by manual bank transfer; no gateway involved.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// KnownPaymentMethod reports whether the supplied method is accepted at checkout.
func KnownPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodVNPay, PaymentMethodMoMo, PaymentMethodStripe, PaymentMethodCOD, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// Online reports whether the method requires a redirect/callback gateway round trip.
func (m PaymentMethod) Online() bool {
	switch m {
	case PaymentMethodVNPay, PaymentMethodMoMo, PaymentMethodStripe:
		return true
	}
	return false
}

// ProductSnapshot is the catalog view resolved at order-creation time.
// Price and stock are read in the same transaction that reserves inventory,
// so the values are consistent with the decrement applied to them.
type ProductSnapshot struct {
	ID    string
	Name  string
	Price int64
	Stock int
}

// Order is the settlement ledger record. Total is fixed at creation and never
// recomputed; line items capture the catalog price at purchase time.
type Order struct {
	ID              string
	UserID          string
	Status          OrderStatus
	Items           []OrderItem
	Subtotal        int64
	ShippingFee     int64
	Discount        int64
	Total           int64
	PaymentMethod   PaymentMethod
	ShippingAddress Address
	Note            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
}

// OrderItem is owned by its order, created with it, and never mutated.
type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
}

// Address is the shipping contact captured on the order.
type Address struct {
	Recipient string
	Phone     string
	Line1     string
	Ward      string
	District  string
	City      string
}

// OrderEvent is published on order lifecycle changes for downstream consumers
// (fulfilment, notifications). Delivery is best effort.
type OrderEvent struct {
	Type       string
	OrderID    string
	UserID     string
	Status     OrderStatus
	Total      int64
	OccurredAt time.Time
}

const (
	// OrderEventCreated is published after an order is committed in pending status.
	OrderEventCreated = "order.created"
	// OrderEventConfirmed is published after a payment confirmation transition.
	OrderEventConfirmed = "order.confirmed"
	// OrderEventCancelled is published after any transition into cancelled.
	OrderEventCancelled = "order.cancelled"
	// OrderEventStatusChanged is published for fulfilment transitions (shipped, delivered).
	OrderEventStatusChanged = "order.status_changed"
)
