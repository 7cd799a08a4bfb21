package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
)

// OfflineProvider serves payment methods settled outside any gateway,
// such as cash on delivery or manual bank transfers.
type OfflineProvider struct {
	method domain.PaymentMethod
}

// NewOfflineProvider constructs a provider for an offline payment method.
func NewOfflineProvider(method domain.PaymentMethod) (*OfflineProvider, error) {
	if !domain.KnownPaymentMethod(method) {
		return nil, fmt.Errorf("payments: unknown payment method %q", method)
	}
	if method.Online() {
		return nil, fmt.Errorf("payments: method %q requires a gateway provider", method)
	}
	return &OfflineProvider{method: method}, nil
}

// Method reports the payment method this provider serves.
func (p *OfflineProvider) Method() domain.PaymentMethod {
	return p.method
}

// CreatePayment acknowledges the order without contacting a gateway.
func (p *OfflineProvider) CreatePayment(_ context.Context, req CreatePaymentRequest) (CreatePaymentResult, error) {
	if req.Order.ID == "" {
		return CreatePaymentResult{}, errors.New("payments: order id is required")
	}
	return CreatePaymentResult{Offline: true, Reference: req.Order.ID}, nil
}

// VerifyCallback always fails: offline methods never produce callbacks.
func (p *OfflineProvider) VerifyCallback(context.Context, CallbackRequest) (CallbackResult, error) {
	return CallbackResult{}, fmt.Errorf("%w: %q has no gateway callbacks", ErrUnsupportedMethod, p.method)
}
