package services

import (
	"context"
	"time"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/payments"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

// OrderItemInput is one requested line at checkout.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand captures a checkout submission.
type CreateOrderCommand struct {
	UserID          string
	Items           []OrderItemInput
	PaymentMethod   string
	ShippingAddress domain.Address
	Note            string
}

// OrderQuery identifies an order together with the requesting principal.
type OrderQuery struct {
	OrderID     string
	RequesterID string
	Admin       bool
}

// UpdateOrderStatusCommand is an operator-driven lifecycle change.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

// OrderService owns order creation and lifecycle operations.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, query OrderQuery) (domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	CancelOrder(ctx context.Context, query OrderQuery) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
}

// InitiatePaymentCommand starts a payment for an existing order.
type InitiatePaymentCommand struct {
	OrderID     string
	RequesterID string
	Admin       bool
	Method      string
	ClientIP    string
	ReturnURL   string
	NotifyURL   string
}

// PaymentInitiation is the outcome of starting a payment.
type PaymentInitiation struct {
	OrderID string
	Method  domain.PaymentMethod
	PayURL  string
	Offline bool
}

// HandleCallbackCommand carries an unverified gateway notification.
type HandleCallbackCommand struct {
	Method   string
	Callback payments.CallbackRequest
}

// CallbackOutcome reports how a gateway notification was reconciled.
type CallbackOutcome struct {
	OrderID string
	Success bool
	// Applied is true when this notification caused a status transition.
	// Replays of an already reconciled payment leave it false.
	Applied bool
	Status  domain.OrderStatus
}

// PaymentService initiates gateway payments and reconciles their callbacks.
type PaymentService interface {
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error)
	HandleCallback(ctx context.Context, cmd HandleCallbackCommand) (CallbackOutcome, error)
}

// CatalogService exposes read access to the product catalog.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error)
	ListProducts(ctx context.Context) ([]domain.ProductSnapshot, error)
}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemHealthReport decorates the dependency report with build metadata.
type SystemHealthReport struct {
	domain.SystemHealthReport
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
}

// SystemService provides operational health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) (string, error)
}

// PaymentManager routes payment operations to gateway providers.
type PaymentManager interface {
	CreatePayment(ctx context.Context, req payments.CreatePaymentRequest) (payments.CreatePaymentResult, error)
	VerifyCallback(ctx context.Context, method domain.PaymentMethod, req payments.CallbackRequest) (payments.CallbackResult, error)
}

// PricingQuoter prices resolved order lines.
type PricingQuoter interface {
	Quote(items []domain.OrderItem) repositories.OrderTotals
}
