package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/auth"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

type fakePaymentService struct {
	initiation   services.PaymentInitiation
	initiateErr  error
	outcome      services.CallbackOutcome
	callbackErr  error
	lastInitiate services.InitiatePaymentCommand
	lastCallback services.HandleCallbackCommand
}

func (f *fakePaymentService) InitiatePayment(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
	f.lastInitiate = cmd
	if f.initiateErr != nil {
		return services.PaymentInitiation{}, f.initiateErr
	}
	return f.initiation, nil
}

func (f *fakePaymentService) HandleCallback(_ context.Context, cmd services.HandleCallbackCommand) (services.CallbackOutcome, error) {
	f.lastCallback = cmd
	if f.callbackErr != nil {
		return services.CallbackOutcome{}, f.callbackErr
	}
	return f.outcome, nil
}

func newPaymentTestRouter(service services.PaymentService) chi.Router {
	handlers := NewPaymentHandlers(PaymentHandlersDeps{
		Payments:        service,
		FrontendBaseURL: "https://shop.example",
	})
	return NewRouter(
		WithMiddlewares(auth.Middleware()),
		WithPaymentRoutes(handlers.Routes),
	)
}

func TestInitiatePaymentEndpoint(t *testing.T) {
	service := &fakePaymentService{
		initiation: services.PaymentInitiation{
			OrderID: "ord_1",
			Method:  domain.PaymentMethodVNPay,
			PayURL:  "https://sandbox.vnpayment.vn/pay?x=1",
		},
	}
	router := newPaymentTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payment/vnpay", `{"orderId": "ord_1"}`, "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var payload initiatePaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.PayURL == "" || payload.Offline {
		t.Fatalf("payload = %+v", payload)
	}
	if service.lastInitiate.Method != "vnpay" || service.lastInitiate.OrderID != "ord_1" {
		t.Fatalf("command = %+v", service.lastInitiate)
	}
	if service.lastInitiate.NotifyURL != "http://example.com/api/v1/payment/vnpay/ipn" {
		t.Fatalf("NotifyURL = %q", service.lastInitiate.NotifyURL)
	}
	// httptest requests carry a host:port RemoteAddr.
	if service.lastInitiate.ClientIP != "192.0.2.1" {
		t.Fatalf("ClientIP = %q, want bare host", service.lastInitiate.ClientIP)
	}
}

func TestInitiatePaymentRequiresAuth(t *testing.T) {
	router := newPaymentTestRouter(&fakePaymentService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payment/vnpay", `{"orderId": "ord_1"}`, ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestInitiatePaymentNotPayable(t *testing.T) {
	service := &fakePaymentService{initiateErr: services.ErrPaymentOrderNotPayable}
	router := newPaymentTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payment/vnpay", `{"orderId": "ord_1"}`, "user-1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestVNPayIPNAcknowledgement(t *testing.T) {
	cases := []struct {
		name     string
		outcome  services.CallbackOutcome
		err      error
		wantCode string
	}{
		{"applied", services.CallbackOutcome{OrderID: "ord_1", Success: true, Applied: true}, nil, "00"},
		{"replay", services.CallbackOutcome{OrderID: "ord_1", Success: true, Applied: false}, nil, "02"},
		{"bad signature", services.CallbackOutcome{}, services.ErrPaymentCallbackRejected, "97"},
		{"amount mismatch", services.CallbackOutcome{}, services.ErrPaymentAmountMismatch, "04"},
		{"order missing", services.CallbackOutcome{}, services.ErrOrderNotFound, "01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &fakePaymentService{outcome: tc.outcome, callbackErr: tc.err}
			router := newPaymentTestRouter(service)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payment/vnpay/ipn?vnp_TxnRef=ord_1", "", ""))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var ack map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
				t.Fatalf("decode ack: %v", err)
			}
			if ack["RspCode"] != tc.wantCode {
				t.Fatalf("RspCode = %q, want %q", ack["RspCode"], tc.wantCode)
			}
		})
	}
}

func TestMoMoIPNRespondsNoContent(t *testing.T) {
	service := &fakePaymentService{
		outcome: services.CallbackOutcome{OrderID: "ord_1", Success: true, Applied: true},
	}
	router := newPaymentTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payment/momo/ipn", `{"orderId": "ord_1"}`, ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if f := service.lastCallback; f.Method != "momo" || string(f.Callback.Body) != `{"orderId": "ord_1"}` {
		t.Fatalf("callback command = %+v", f)
	}
}

func TestReturnRedirectsToFrontend(t *testing.T) {
	service := &fakePaymentService{
		outcome: services.CallbackOutcome{OrderID: "ord_1", Success: true, Applied: true},
	}
	router := newPaymentTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payment/vnpay/return?vnp_TxnRef=ord_1", "", ""))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Path != "/payment/result" {
		t.Fatalf("redirect path = %q", location.Path)
	}
	query := location.Query()
	if query.Get("success") != "true" || query.Get("orderId") != "ord_1" {
		t.Fatalf("redirect query = %v", query)
	}
}

func TestReturnRedirectsWithFailureOnRejectedCallback(t *testing.T) {
	service := &fakePaymentService{callbackErr: services.ErrPaymentCallbackRejected}
	router := newPaymentTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payment/vnpay/return", "", ""))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Query().Get("success") != "false" {
		t.Fatalf("redirect query = %v", location.Query())
	}
}
