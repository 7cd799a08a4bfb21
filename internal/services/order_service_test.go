package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

type fakeOrderRepository struct {
	orders        map[string]domain.Order
	createErr     error
	updateErr     error
	lastCreate    repositories.OrderCreateRequest
	updatedStatus domain.OrderStatus
}

func newFakeOrderRepository() *fakeOrderRepository {
	return &fakeOrderRepository{orders: map[string]domain.Order{}}
}

func (f *fakeOrderRepository) CreateWithReservation(_ context.Context, req repositories.OrderCreateRequest, price repositories.PricingFunc) (domain.Order, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return domain.Order{}, f.createErr
	}
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: "Product " + item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   95000,
		})
	}
	totals := price(items)
	order := domain.Order{
		ID:              req.OrderID,
		UserID:          req.UserID,
		Status:          domain.OrderStatusPending,
		Items:           items,
		Subtotal:        totals.Subtotal,
		ShippingFee:     totals.ShippingFee,
		Discount:        totals.Discount,
		Total:           totals.Total,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Note:            req.Note,
		CreatedAt:       req.Now,
		UpdatedAt:       req.Now,
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+orderID+" not found", nil)
	}
	return order, nil
}

func (f *fakeOrderRepository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	var result []domain.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			result = append(result, order)
		}
	}
	return result, nil
}

func (f *fakeOrderRepository) UpdateStatus(_ context.Context, orderID string, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	if f.updateErr != nil {
		return domain.Order{}, f.updateErr
	}
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+orderID+" not found", nil)
	}
	if err := domain.Transition(order.Status, to); err != nil {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorIllegalTransition, err.Error(), err)
	}
	order.Status = to
	order.UpdatedAt = now
	f.orders[orderID] = order
	f.updatedStatus = to
	return order, nil
}

type fakeEventPublisher struct {
	events []domain.OrderEvent
	err    error
}

func (f *fakeEventPublisher) PublishOrderEvent(_ context.Context, event domain.OrderEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	return "msg-1", nil
}

func testShippingAddress() domain.Address {
	return domain.Address{
		Recipient: "Nguyen Thi Thao",
		Phone:     "0901234567",
		Line1:     "12 Nguyen Trai",
		Ward:      "Ben Thanh",
		District:  "Quan 1",
		City:      "Ho Chi Minh",
	}
}

func newTestOrderService(t *testing.T, repo *fakeOrderRepository, events *fakeEventPublisher) OrderService {
	t.Helper()
	var publisher OrderEventPublisher
	if events != nil {
		publisher = events
	}
	service, err := NewOrderService(OrderServiceDeps{
		Orders:  repo,
		Pricing: testPricingEngine(t),
		Events:  publisher,
		Clock: func() time.Time {
			return time.Date(2024, 11, 3, 9, 30, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return service
}

func TestCreateOrderPricesAndPublishes(t *testing.T) {
	repo := newFakeOrderRepository()
	events := &fakeEventPublisher{}
	service := newTestOrderService(t, repo, events)

	order, err := service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []OrderItemInput{{ProductID: "planner-a5", Quantity: 4}},
		PaymentMethod:   "VNPay",
		ShippingAddress: testShippingAddress(),
		Note:            "Giao gio hanh chinh",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !strings.HasPrefix(order.ID, orderIDPrefix) {
		t.Fatalf("order id %q missing prefix", order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("Status = %q, want pending", order.Status)
	}
	if order.PaymentMethod != domain.PaymentMethodVNPay {
		t.Fatalf("PaymentMethod = %q, want vnpay", order.PaymentMethod)
	}
	// 4 x 95000 = 380000, over the discount threshold.
	if order.Total != 365000 {
		t.Fatalf("Total = %d, want 365000", order.Total)
	}
	if len(events.events) != 1 || events.events[0].Type != domain.OrderEventCreated {
		t.Fatalf("events = %+v", events.events)
	}
}

func TestCreateOrderSanitizesNote(t *testing.T) {
	repo := newFakeOrderRepository()
	service := newTestOrderService(t, repo, nil)

	order, err := service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []OrderItemInput{{ProductID: "planner-a5", Quantity: 1}},
		PaymentMethod:   "cod",
		ShippingAddress: testShippingAddress(),
		Note:            `<script>alert("x")</script>Goi qua giup minh`,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Note != "Goi qua giup minh" {
		t.Fatalf("Note = %q", order.Note)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	repo := newFakeOrderRepository()
	service := newTestOrderService(t, repo, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  CreateOrderCommand
	}{
		{"missing user", CreateOrderCommand{Items: []OrderItemInput{{ProductID: "p", Quantity: 1}}, PaymentMethod: "cod", ShippingAddress: testShippingAddress()}},
		{"no items", CreateOrderCommand{UserID: "u", PaymentMethod: "cod", ShippingAddress: testShippingAddress()}},
		{"zero quantity", CreateOrderCommand{UserID: "u", Items: []OrderItemInput{{ProductID: "p", Quantity: 0}}, PaymentMethod: "cod", ShippingAddress: testShippingAddress()}},
		{"unknown method", CreateOrderCommand{UserID: "u", Items: []OrderItemInput{{ProductID: "p", Quantity: 1}}, PaymentMethod: "paypal", ShippingAddress: testShippingAddress()}},
		{"missing recipient", CreateOrderCommand{UserID: "u", Items: []OrderItemInput{{ProductID: "p", Quantity: 1}}, PaymentMethod: "cod"}},
	}
	for _, tc := range cases {
		if _, err := service.CreateOrder(ctx, tc.cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrOrderInvalidInput", tc.name, err)
		}
	}
}

func TestCreateOrderTranslatesStockErrors(t *testing.T) {
	repo := newFakeOrderRepository()
	repo.createErr = repositories.NewOrderError(repositories.OrderErrorInsufficientStock, "planner-a5 has 1 left", nil)
	service := newTestOrderService(t, repo, nil)

	_, err := service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []OrderItemInput{{ProductID: "planner-a5", Quantity: 5}},
		PaymentMethod:   "cod",
		ShippingAddress: testShippingAddress(),
	})
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("err = %v, want ErrOrderInsufficientStock", err)
	}
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	repo := newFakeOrderRepository()
	repo.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusPending}
	service := newTestOrderService(t, repo, nil)
	ctx := context.Background()

	if _, err := service.GetOrder(ctx, OrderQuery{OrderID: "ord_1", RequesterID: "user-1"}); err != nil {
		t.Fatalf("owner GetOrder: %v", err)
	}
	if _, err := service.GetOrder(ctx, OrderQuery{OrderID: "ord_1", RequesterID: "user-2"}); !errors.Is(err, ErrOrderAccessDenied) {
		t.Fatalf("stranger err = %v, want ErrOrderAccessDenied", err)
	}
	if _, err := service.GetOrder(ctx, OrderQuery{OrderID: "ord_1", RequesterID: "admin-1", Admin: true}); err != nil {
		t.Fatalf("admin GetOrder: %v", err)
	}
	if _, err := service.GetOrder(ctx, OrderQuery{OrderID: "ord_missing", RequesterID: "user-1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("missing err = %v, want ErrOrderNotFound", err)
	}
}

func TestCancelOrderPublishesEvent(t *testing.T) {
	repo := newFakeOrderRepository()
	repo.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusPending}
	events := &fakeEventPublisher{}
	service := newTestOrderService(t, repo, events)

	order, err := service.CancelOrder(context.Background(), OrderQuery{OrderID: "ord_1", RequesterID: "user-1"})
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("Status = %q, want cancelled", order.Status)
	}
	if len(events.events) != 1 || events.events[0].Type != domain.OrderEventCancelled {
		t.Fatalf("events = %+v", events.events)
	}
}

func TestCancelOrderOnlyWhilePending(t *testing.T) {
	cases := []struct {
		name   string
		status domain.OrderStatus
	}{
		{name: "confirmed", status: domain.OrderStatusConfirmed},
		{name: "shipped", status: domain.OrderStatusShipped},
		{name: "delivered", status: domain.OrderStatusDelivered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeOrderRepository()
			repo.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "user-1", Status: tc.status}
			events := &fakeEventPublisher{}
			service := newTestOrderService(t, repo, events)

			_, err := service.CancelOrder(context.Background(), OrderQuery{OrderID: "ord_1", RequesterID: "user-1"})
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("err = %v, want ErrOrderInvalidState", err)
			}
			if repo.orders["ord_1"].Status != tc.status {
				t.Fatalf("order status = %q, want %q", repo.orders["ord_1"].Status, tc.status)
			}
			if len(events.events) != 0 {
				t.Fatalf("events = %+v", events.events)
			}
		})
	}
}

func TestUpdateOrderStatusMapsEvents(t *testing.T) {
	repo := newFakeOrderRepository()
	repo.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusConfirmed}
	events := &fakeEventPublisher{}
	service := newTestOrderService(t, repo, events)

	order, err := service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  "shipped",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	if order.Status != domain.OrderStatusShipped {
		t.Fatalf("Status = %q, want shipped", order.Status)
	}
	if len(events.events) != 1 || events.events[0].Type != domain.OrderEventStatusChanged {
		t.Fatalf("events = %+v", events.events)
	}

	if _, err := service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  "packed",
	}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("unknown status err = %v, want ErrOrderInvalidInput", err)
	}
}

func TestCreateOrderSurvivesPublishFailure(t *testing.T) {
	repo := newFakeOrderRepository()
	events := &fakeEventPublisher{err: errors.New("pubsub down")}
	service := newTestOrderService(t, repo, events)

	if _, err := service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []OrderItemInput{{ProductID: "planner-a5", Quantity: 1}},
		PaymentMethod:   "cod",
		ShippingAddress: testShippingAddress(),
	}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
}
