package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/auth"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

type fakeOrderService struct {
	order     domain.Order
	orders    []domain.Order
	err       error
	lastCmd   services.CreateOrderCommand
	lastQuery services.OrderQuery
	lastAdmin services.UpdateOrderStatusCommand
}

func (f *fakeOrderService) CreateOrder(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	f.lastCmd = cmd
	if f.err != nil {
		return domain.Order{}, f.err
	}
	return f.order, nil
}

func (f *fakeOrderService) GetOrder(_ context.Context, query services.OrderQuery) (domain.Order, error) {
	f.lastQuery = query
	if f.err != nil {
		return domain.Order{}, f.err
	}
	return f.order, nil
}

func (f *fakeOrderService) ListOrders(_ context.Context, _ string) ([]domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

func (f *fakeOrderService) CancelOrder(_ context.Context, query services.OrderQuery) (domain.Order, error) {
	f.lastQuery = query
	if f.err != nil {
		return domain.Order{}, f.err
	}
	return f.order, nil
}

func (f *fakeOrderService) UpdateOrderStatus(_ context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	f.lastAdmin = cmd
	if f.err != nil {
		return domain.Order{}, f.err
	}
	return f.order, nil
}

func newOrderTestRouter(service services.OrderService) chi.Router {
	handlers := NewOrderHandlers(OrderHandlersDeps{Orders: service})
	return NewRouter(
		WithMiddlewares(auth.Middleware()),
		WithOrderRoutes(handlers.Routes),
	)
}

func authedRequest(method, target, body, userID string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	return req
}

func TestCreateOrderEndpoint(t *testing.T) {
	service := &fakeOrderService{
		order: domain.Order{
			ID:            "ord_1",
			UserID:        "user-1",
			Status:        domain.OrderStatusPending,
			Total:         285000,
			PaymentMethod: domain.PaymentMethodVNPay,
		},
	}
	router := newOrderTestRouter(service)

	body := `{
		"items": [{"productId": "planner-a5", "quantity": 3}],
		"paymentMethod": "vnpay",
		"shippingAddress": {
			"recipient": "Nguyen Thi Thao",
			"phone": "0901234567",
			"line1": "12 Nguyen Trai",
			"city": "Ho Chi Minh"
		},
		"note": "Giao gio hanh chinh"
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/", body, "user-1"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var payload orderPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "ord_1" || payload.Total != 285000 {
		t.Fatalf("payload = %+v", payload)
	}
	if service.lastCmd.UserID != "user-1" {
		t.Fatalf("command user = %q", service.lastCmd.UserID)
	}
	if len(service.lastCmd.Items) != 1 || service.lastCmd.Items[0].Quantity != 3 {
		t.Fatalf("command items = %+v", service.lastCmd.Items)
	}
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	router := newOrderTestRouter(&fakeOrderService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/", `{}`, ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateOrderRejectsBadJSON(t *testing.T) {
	router := newOrderTestRouter(&fakeOrderService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/", `{not json`, "user-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateOrderStockAndCatalogErrors(t *testing.T) {
	body := `{"items": [{"productId": "planner-a5", "quantity": 99}], "paymentMethod": "cod", "shippingAddress": {"recipient": "A", "phone": "1", "line1": "x", "city": "HCM"}}`
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "insufficient stock", err: services.ErrOrderInsufficientStock, wantCode: "insufficient_stock"},
		{name: "unknown product", err: services.ErrOrderProductNotFound, wantCode: "product_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newOrderTestRouter(&fakeOrderService{err: tc.err})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/", body, "user-1"))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.wantCode) {
				t.Fatalf("body = %s, want code %q", rec.Body.String(), tc.wantCode)
			}
		})
	}
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	service := &fakeOrderService{err: services.ErrOrderAccessDenied}
	router := newOrderTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/orders/ord_1", "", "user-2"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if service.lastQuery.RequesterID != "user-2" {
		t.Fatalf("query requester = %q", service.lastQuery.RequesterID)
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	service := &fakeOrderService{
		order: domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusCancelled},
	}
	router := newOrderTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/ord_1/cancel", "", "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var payload orderPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "cancelled" {
		t.Fatalf("status = %q, want cancelled", payload.Status)
	}
}

func TestAdminStatusUpdateRequiresAdminRole(t *testing.T) {
	service := &fakeOrderService{
		order: domain.Order{ID: "ord_1", Status: domain.OrderStatusShipped},
	}
	admin := NewAdminHandlers(AdminHandlersDeps{Orders: service})
	router := NewRouter(
		WithMiddlewares(auth.Middleware()),
		WithAdminRoutes(admin.Routes),
	)

	body := `{"status": "shipped"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/v1/admin/orders/ord_1/status", body, "user-1"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rec.Code)
	}

	req := authedRequest(http.MethodPatch, "/api/v1/admin/orders/ord_1/status", body, "admin-1")
	req.Header.Set("X-User-Role", "admin")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if service.lastAdmin.Status != "shipped" || service.lastAdmin.ActorID != "admin-1" {
		t.Fatalf("admin command = %+v", service.lastAdmin)
	}
}
