package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/payments"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/auth"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/httpx"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

const maxCallbackBodySize = 256 * 1024

type initiatePaymentResponse struct {
	OrderID string `json:"orderId"`
	Method  string `json:"method"`
	PayURL  string `json:"payUrl,omitempty"`
	Offline bool   `json:"offline"`
}

// PaymentHandlersDeps bundles collaborators for PaymentHandlers.
type PaymentHandlersDeps struct {
	Payments services.PaymentService
	// FrontendBaseURL is where customers land after a gateway redirect.
	FrontendBaseURL string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// PaymentHandlers exposes payment initiation and gateway callback endpoints.
type PaymentHandlers struct {
	payments    services.PaymentService
	frontendURL string
	logger      func(context.Context, string, map[string]any)
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(deps PaymentHandlersDeps) *PaymentHandlers {
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentHandlers{
		payments:    deps.Payments,
		frontendURL: strings.TrimRight(deps.FrontendBaseURL, "/"),
		logger:      logger,
	}
}

// Routes registers the /payment endpoints. Callback routes stay public:
// gateways authenticate with signatures, not sessions.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(auth.RequireUser()).Post("/{gateway}", h.initiatePayment)
	r.Post("/{gateway}/ipn", h.handleIPN)
	r.Get("/{gateway}/return", h.handleReturn)
}

func (h *PaymentHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	gateway := strings.TrimSpace(chi.URLParam(r, "gateway"))
	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	if orderID == "" {
		var req struct {
			OrderID string `json:"orderId"`
		}
		if err := decodeJSONBody(r, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
			return
		}
		orderID = strings.TrimSpace(req.OrderID)
	}

	base := requestBaseURL(r)
	initiation, err := h.payments.InitiatePayment(ctx, services.InitiatePaymentCommand{
		OrderID:     orderID,
		RequesterID: identity.UID,
		Admin:       identity.Admin,
		Method:      gateway,
		ClientIP:    clientIP(r),
		ReturnURL:   fmt.Sprintf("%s/api/v1/payment/%s/return", base, gateway),
		NotifyURL:   fmt.Sprintf("%s/api/v1/payment/%s/ipn", base, gateway),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, initiatePaymentResponse{
		OrderID: initiation.OrderID,
		Method:  string(initiation.Method),
		PayURL:  initiation.PayURL,
		Offline: initiation.Offline,
	})
}

func (h *PaymentHandlers) handleIPN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gateway := strings.TrimSpace(chi.URLParam(r, "gateway"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	outcome, err := h.payments.HandleCallback(ctx, services.HandleCallbackCommand{
		Method: gateway,
		Callback: payments.CallbackRequest{
			Channel: payments.ChannelIPN,
			Params:  r.URL.Query(),
			Body:    body,
			Header:  r.Header,
		},
	})

	// Each gateway expects its own acknowledgement shape.
	switch gateway {
	case "vnpay":
		h.acknowledgeVNPay(ctx, w, outcome, err)
	case "momo":
		if err != nil {
			writePaymentError(ctx, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		if err != nil {
			writePaymentError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
	}
}

// acknowledgeVNPay answers in the RspCode envelope VNPay retries against.
// Anything other than "00"/"02" makes VNPay resend the notification.
func (h *PaymentHandlers) acknowledgeVNPay(ctx context.Context, w http.ResponseWriter, outcome services.CallbackOutcome, err error) {
	code, message := "00", "Confirm Success"
	switch {
	case err == nil && !outcome.Applied:
		code, message = "02", "Order already confirmed"
	case errors.Is(err, services.ErrPaymentCallbackRejected):
		code, message = "97", "Invalid signature"
	case errors.Is(err, services.ErrPaymentAmountMismatch):
		code, message = "04", "Invalid amount"
	case errors.Is(err, services.ErrOrderNotFound):
		code, message = "01", "Order not found"
	case err != nil:
		code, message = "99", "Unknown error"
	}
	if err != nil {
		h.logger(ctx, "payments.ipn.rejected", map[string]any{
			"gateway": "vnpay",
			"rspCode": code,
			"error":   err.Error(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"RspCode": code, "Message": message})
}

func (h *PaymentHandlers) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gateway := strings.TrimSpace(chi.URLParam(r, "gateway"))

	outcome, err := h.payments.HandleCallback(ctx, services.HandleCallbackCommand{
		Method: gateway,
		Callback: payments.CallbackRequest{
			Channel: payments.ChannelReturn,
			Params:  r.URL.Query(),
			Header:  r.Header,
		},
	})

	success := err == nil && outcome.Success
	orderID := outcome.OrderID
	if err != nil {
		h.logger(ctx, "payments.return.rejected", map[string]any{
			"gateway": gateway,
			"error":   err.Error(),
		})
	}

	redirect := fmt.Sprintf("%s/payment/result?%s", h.frontendURL, url.Values{
		"success": {fmt.Sprintf("%t", success)},
		"orderId": {orderID},
	}.Encode())
	http.Redirect(w, r, redirect, http.StatusFound)
}

// clientIP strips the port RemoteAddr carries when no proxy rewrote it.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentMethodMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("payment_method_mismatch", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentOrderNotPayable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_payable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentCallbackRejected):
		httpx.WriteError(ctx, w, httpx.NewError("callback_rejected", "callback verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", "callback amount does not match order", http.StatusBadRequest))
	case errors.Is(err, payments.ErrUnsupportedMethod):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_method", err.Error(), http.StatusBadRequest))
	default:
		writeOrderError(ctx, w, err)
	}
}
