package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/auth"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/httpx"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// AdminHandlersDeps bundles collaborators for AdminHandlers.
type AdminHandlersDeps struct {
	Orders services.OrderService
}

// AdminHandlers exposes operator endpoints for order fulfilment.
type AdminHandlers struct {
	orders services.OrderService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{orders: deps.Orders}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireAdmin())
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
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

	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  req.Status,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}
