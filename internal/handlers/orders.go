package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/auth"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/httpx"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

const maxOrderBodySize = 64 * 1024

type createOrderRequest struct {
	Items           []createOrderItem  `json:"items"`
	PaymentMethod   string             `json:"paymentMethod"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	Note            string             `json:"note"`
}

type createOrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type addressPayload struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Ward      string `json:"ward"`
	District  string `json:"district"`
	City      string `json:"city"`
}

type orderItemPayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	UserID          string             `json:"userId"`
	Status          string             `json:"status"`
	Items           []orderItemPayload `json:"items"`
	Subtotal        int64              `json:"subtotal"`
	ShippingFee     int64              `json:"shippingFee"`
	Discount        int64              `json:"discount"`
	Total           int64              `json:"total"`
	PaymentMethod   string             `json:"paymentMethod"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	Note            string             `json:"note,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	ConfirmedAt     *time.Time         `json:"confirmedAt,omitempty"`
	CancelledAt     *time.Time         `json:"cancelledAt,omitempty"`
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

// OrderHandlersDeps bundles collaborators for OrderHandlers.
type OrderHandlersDeps struct {
	Orders services.OrderService
	// Idempotency wraps the create endpoint so retried submissions replay
	// the stored response instead of reserving stock twice.
	Idempotency func(http.Handler) http.Handler
}

// OrderHandlers exposes order endpoints for authenticated users.
type OrderHandlers struct {
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(deps OrderHandlersDeps) *OrderHandlers {
	return &OrderHandlers{
		orders:      deps.Orders,
		idempotency: deps.Idempotency,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireUser())
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.createOrder)
	} else {
		r.Post("/", h.createOrder)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:        identity.UID,
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		ShippingAddress: domain.Address{
			Recipient: req.ShippingAddress.Recipient,
			Phone:     req.ShippingAddress.Phone,
			Line1:     req.ShippingAddress.Line1,
			Ward:      req.ShippingAddress.Ward,
			District:  req.ShippingAddress.District,
			City:      req.ShippingAddress.City,
		},
		Note: req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderQuery{
		OrderID:     orderID,
		RequesterID: identity.UID,
		Admin:       identity.Admin,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.OrderQuery{
		OrderID:     orderID,
		RequesterID: identity.UID,
		Admin:       identity.Admin,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func decodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, maxOrderBodySize)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return errors.New("request body must be valid JSON")
	}
	return nil
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return orderPayload{
		ID:          order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Items:       items,
		Subtotal:    order.Subtotal,
		ShippingFee: order.ShippingFee,
		Discount:    order.Discount,
		Total:       order.Total,
		PaymentMethod: string(order.PaymentMethod),
		ShippingAddress: addressPayload{
			Recipient: order.ShippingAddress.Recipient,
			Phone:     order.ShippingAddress.Phone,
			Line1:     order.ShippingAddress.Line1,
			Ward:      order.ShippingAddress.Ward,
			District:  order.ShippingAddress.District,
			City:      order.ShippingAddress.City,
		},
		Note:        order.Note,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		ConfirmedAt: order.ConfirmedAt,
		CancelledAt: order.CancelledAt,
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderAccessDenied):
		// Ownership misses are indistinguishable from missing orders.
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
