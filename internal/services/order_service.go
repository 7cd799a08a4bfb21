package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAccessDenied indicates the requester does not own the order.
	ErrOrderAccessDenied = errors.New("order: access denied")
	// ErrOrderProductNotFound indicates a requested product has no catalog record.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderInsufficientStock indicates requested quantity exceeds availability.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Pricing     PricingQuoter
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	pricing   PricingQuoter
	events    OrderEventPublisher
	sanitizer *bluemonday.Policy
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		pricing:   deps.Pricing,
		events:    deps.Events,
		sanitizer: bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	items := make([]repositories.OrderItemRequest, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return domain.Order{}, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: item quantity must be positive for product %s", ErrOrderInvalidInput, productID)
		}
		items = append(items, repositories.OrderItemRequest{ProductID: productID, Quantity: item.Quantity})
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(cmd.PaymentMethod)))
	if !domain.KnownPaymentMethod(method) {
		return domain.Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	address, err := normalizeAddress(cmd.ShippingAddress)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.orders.CreateWithReservation(ctx, repositories.OrderCreateRequest{
		OrderID:         s.newID(),
		UserID:          userID,
		Items:           items,
		PaymentMethod:   method,
		ShippingAddress: address,
		Note:            strings.TrimSpace(s.sanitizer.Sanitize(cmd.Note)),
		Now:             s.clock(),
	}, s.pricing.Quote)
	if err != nil {
		return domain.Order{}, translateOrderError(err)
	}

	s.logger(ctx, "orders.created", map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
		"total":   order.Total,
		"method":  string(order.PaymentMethod),
	})
	s.publishEvent(ctx, domain.OrderEventCreated, order)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, query OrderQuery) (domain.Order, error) {
	order, err := s.loadOrder(ctx, query)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, translateOrderError(err)
	}
	return orders, nil
}

func (s *orderService) CancelOrder(ctx context.Context, query OrderQuery) (domain.Order, error) {
	current, err := s.loadOrder(ctx, query)
	if err != nil {
		return domain.Order{}, err
	}
	// Customers may only cancel before payment settles; later cancellations
	// go through the admin status endpoint.
	if current.Status != domain.OrderStatusPending {
		return domain.Order{}, fmt.Errorf("%w: order is %q", ErrOrderInvalidState, current.Status)
	}

	order, err := s.orders.UpdateStatus(ctx, query.OrderID, domain.OrderStatusCancelled, s.clock())
	if err != nil {
		return domain.Order{}, translateOrderError(err)
	}

	s.logger(ctx, "orders.cancelled", map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
	})
	s.publishEvent(ctx, domain.OrderEventCancelled, order)
	return order, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	status, err := domain.ParseOrderStatus(cmd.Status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	order, err := s.orders.UpdateStatus(ctx, orderID, status, s.clock())
	if err != nil {
		return domain.Order{}, translateOrderError(err)
	}

	s.logger(ctx, "orders.status_updated", map[string]any{
		"orderId": order.ID,
		"status":  string(order.Status),
		"actorId": cmd.ActorID,
	})
	s.publishEvent(ctx, eventTypeForStatus(order.Status), order)
	return order, nil
}

func (s *orderService) loadOrder(ctx context.Context, query OrderQuery) (domain.Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, translateOrderError(err)
	}
	if !query.Admin && order.UserID != query.RequesterID {
		return domain.Order{}, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *orderService) publishEvent(ctx context.Context, eventType string, order domain.Order) {
	if s.events == nil {
		return
	}
	// Event delivery is best effort; failures never roll an order back.
	_, err := s.events.PublishOrderEvent(ctx, domain.OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total,
		OccurredAt: s.clock(),
	})
	if err != nil {
		s.logger(ctx, "orders.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

func eventTypeForStatus(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusConfirmed:
		return domain.OrderEventConfirmed
	case domain.OrderStatusCancelled:
		return domain.OrderEventCancelled
	default:
		return domain.OrderEventStatusChanged
	}
}

func normalizeAddress(address domain.Address) (domain.Address, error) {
	address.Recipient = strings.TrimSpace(address.Recipient)
	address.Phone = strings.TrimSpace(address.Phone)
	address.Line1 = strings.TrimSpace(address.Line1)
	address.Ward = strings.TrimSpace(address.Ward)
	address.District = strings.TrimSpace(address.District)
	address.City = strings.TrimSpace(address.City)
	if address.Recipient == "" {
		return domain.Address{}, fmt.Errorf("%w: shipping recipient is required", ErrOrderInvalidInput)
	}
	if address.Phone == "" {
		return domain.Address{}, fmt.Errorf("%w: shipping phone is required", ErrOrderInvalidInput)
	}
	if address.Line1 == "" {
		return domain.Address{}, fmt.Errorf("%w: shipping address line is required", ErrOrderInvalidInput)
	}
	if address.City == "" {
		return domain.Address{}, fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	}
	return address, nil
}

func translateOrderError(err error) error {
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderErr.Message)
		case repositories.OrderErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrOrderProductNotFound, orderErr.Message)
		case repositories.OrderErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, orderErr.Message)
		case repositories.OrderErrorIllegalTransition:
			return fmt.Errorf("%w: %s", ErrOrderInvalidState, orderErr.Message)
		}
	}
	return err
}
