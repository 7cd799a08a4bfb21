package repositories

import (
	"context"
	"time"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderItemRequest is a line requested at checkout before prices are resolved.
type OrderItemRequest struct {
	ProductID string
	Quantity  int
}

// OrderCreateRequest carries everything needed to settle a new order.
type OrderCreateRequest struct {
	OrderID         string
	UserID          string
	Items           []OrderItemRequest
	PaymentMethod   domain.PaymentMethod
	ShippingAddress domain.Address
	Note            string
	Now             time.Time
}

// OrderTotals is the priced breakdown applied to an order at creation.
type OrderTotals struct {
	Subtotal    int64
	ShippingFee int64
	Discount    int64
	Total       int64
}

// PricingFunc computes totals for priced line items. It is invoked inside the
// creation transaction so totals always reflect the captured unit prices.
type PricingFunc func(items []domain.OrderItem) OrderTotals

// OrderRepository persists orders and owns the stock reservation transaction.
type OrderRepository interface {
	// CreateWithReservation atomically checks and decrements stock for every
	// line and inserts the order in pending status. Any shortfall aborts the
	// whole operation.
	CreateWithReservation(ctx context.Context, req OrderCreateRequest, price PricingFunc) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	// UpdateStatus applies the lifecycle transition guard inside a transaction
	// and restores line quantities to stock when cancelling out of a state
	// that holds a reservation.
	UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, now time.Time) (domain.Order, error)
}

// CatalogRepository exposes read access to the product catalog.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error)
	ListProducts(ctx context.Context) ([]domain.ProductSnapshot, error)
}

// DependencyCheck describes a dependency probe executed during readiness checks.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// HealthRepository aggregates dependency probes for the readiness endpoint.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
