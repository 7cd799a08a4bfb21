package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/payments"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentMethodMismatch indicates the requested gateway differs from the order's method.
	ErrPaymentMethodMismatch = errors.New("payment: method does not match order")
	// ErrPaymentOrderNotPayable indicates the order is not awaiting payment.
	ErrPaymentOrderNotPayable = errors.New("payment: order is not payable")
	// ErrPaymentCallbackRejected indicates the gateway notification failed verification.
	ErrPaymentCallbackRejected = errors.New("payment: callback rejected")
	// ErrPaymentAmountMismatch indicates the callback amount differs from the order total.
	ErrPaymentAmountMismatch = errors.New("payment: amount mismatch")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders  repositories.OrderRepository
	Manager PaymentManager
	Events  OrderEventPublisher
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders  repositories.OrderRepository
	manager PaymentManager
	events  OrderEventPublisher
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Manager == nil {
		return nil, errors.New("payment service: payment manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:  deps.Orders,
		manager: deps.Manager,
		events:  deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *paymentService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentInitiation{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(cmd.Method)))
	if !domain.KnownPaymentMethod(method) {
		return PaymentInitiation{}, fmt.Errorf("%w: unknown payment method %q", ErrPaymentInvalidInput, cmd.Method)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentInitiation{}, translateOrderError(err)
	}
	if !cmd.Admin && order.UserID != cmd.RequesterID {
		return PaymentInitiation{}, ErrOrderAccessDenied
	}
	if order.PaymentMethod != method {
		return PaymentInitiation{}, fmt.Errorf("%w: order uses %q", ErrPaymentMethodMismatch, order.PaymentMethod)
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentInitiation{}, fmt.Errorf("%w: status is %q", ErrPaymentOrderNotPayable, order.Status)
	}

	result, err := s.manager.CreatePayment(ctx, payments.CreatePaymentRequest{
		Order:     order,
		ClientIP:  cmd.ClientIP,
		ReturnURL: cmd.ReturnURL,
		NotifyURL: cmd.NotifyURL,
	})
	if err != nil {
		return PaymentInitiation{}, err
	}

	s.logger(ctx, "payments.initiated", map[string]any{
		"orderId": order.ID,
		"method":  string(method),
		"offline": result.Offline,
	})
	return PaymentInitiation{
		OrderID: order.ID,
		Method:  method,
		PayURL:  result.PayURL,
		Offline: result.Offline,
	}, nil
}

// HandleCallback reconciles a gateway notification with the order ledger.
// Callbacks are delivered at least once; replays are absorbed by the status
// transition guard rather than tracked separately.
func (s *paymentService) HandleCallback(ctx context.Context, cmd HandleCallbackCommand) (CallbackOutcome, error) {
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(cmd.Method)))
	if !domain.KnownPaymentMethod(method) {
		return CallbackOutcome{}, fmt.Errorf("%w: unknown payment method %q", ErrPaymentInvalidInput, cmd.Method)
	}

	result, err := s.manager.VerifyCallback(ctx, method, cmd.Callback)
	if err != nil {
		return CallbackOutcome{}, fmt.Errorf("%w: %v", ErrPaymentCallbackRejected, err)
	}

	order, err := s.orders.FindByID(ctx, result.OrderID)
	if err != nil {
		return CallbackOutcome{}, translateOrderError(err)
	}

	if result.Success && result.Amount != order.Total {
		s.logger(ctx, "payments.callback.amount_mismatch", map[string]any{
			"orderId":  order.ID,
			"expected": order.Total,
			"received": result.Amount,
		})
		return CallbackOutcome{}, fmt.Errorf("%w: expected %d, got %d", ErrPaymentAmountMismatch, order.Total, result.Amount)
	}

	target := domain.OrderStatusConfirmed
	if !result.Success {
		target = domain.OrderStatusCancelled
	}

	if order.Status != domain.OrderStatusPending {
		// Already reconciled, or moved on through fulfilment. Callbacks
		// settle pending orders only; a stale failure notification must
		// not undo a confirmation.
		return CallbackOutcome{OrderID: order.ID, Success: result.Success, Applied: false, Status: order.Status}, nil
	}

	updated, err := s.orders.UpdateStatus(ctx, order.ID, target, s.clock())
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorIllegalTransition {
			// Lost a race with a concurrent callback; the winner has
			// already settled the order.
			current, findErr := s.orders.FindByID(ctx, order.ID)
			if findErr == nil && current.Status != domain.OrderStatusPending {
				return CallbackOutcome{OrderID: order.ID, Success: result.Success, Applied: false, Status: current.Status}, nil
			}
		}
		return CallbackOutcome{}, translateOrderError(err)
	}

	s.logger(ctx, "payments.callback.applied", map[string]any{
		"orderId":       updated.ID,
		"method":        string(method),
		"status":        string(updated.Status),
		"transactionId": result.TransactionID,
	})
	s.publishEvent(ctx, eventTypeForStatus(updated.Status), updated)
	return CallbackOutcome{OrderID: updated.ID, Success: result.Success, Applied: true, Status: updated.Status}, nil
}

func (s *paymentService) publishEvent(ctx context.Context, eventType string, order domain.Order) {
	if s.events == nil {
		return
	}
	_, err := s.events.PublishOrderEvent(ctx, domain.OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total,
		OccurredAt: s.clock(),
	})
	if err != nil {
		s.logger(ctx, "payments.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}
