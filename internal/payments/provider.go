package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
)

// Logger defines the logging contract for payment provider operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

var (
	// ErrUnsupportedMethod indicates no provider is registered for the payment method.
	ErrUnsupportedMethod = errors.New("payments: unsupported payment method")
	// ErrInvalidSignature indicates a callback failed signature verification.
	ErrInvalidSignature = errors.New("payments: invalid signature")
	// ErrMalformedCallback indicates a callback payload could not be parsed.
	ErrMalformedCallback = errors.New("payments: malformed callback")
)

// CallbackChannel identifies how a gateway notification reached the API.
type CallbackChannel string

const (
	// ChannelIPN is the server-to-server notification channel.
	ChannelIPN CallbackChannel = "ipn"
	// ChannelReturn is the customer browser redirect channel.
	ChannelReturn CallbackChannel = "return"
)

// CreatePaymentRequest carries everything a provider needs to start a payment.
type CreatePaymentRequest struct {
	Order     domain.Order
	ClientIP  string
	ReturnURL string
	NotifyURL string
}

// CreatePaymentResult is the outcome of initiating a payment.
type CreatePaymentResult struct {
	// PayURL is where the customer completes the payment. Empty for offline methods.
	PayURL string
	// Offline is true when no gateway interaction is required.
	Offline bool
	// Reference is the provider-side identifier of the payment, when available.
	Reference string
}

// CallbackRequest is a gateway notification awaiting verification.
type CallbackRequest struct {
	Channel CallbackChannel
	Params  url.Values
	Body    []byte
	Header  http.Header
}

// CallbackResult is a verified gateway notification.
type CallbackResult struct {
	OrderID       string
	Success       bool
	Amount        int64
	TransactionID string
	FailureReason string
}

// Provider integrates one payment method with the order pipeline.
type Provider interface {
	Method() domain.PaymentMethod
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResult, error)
	VerifyCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error)
}

// Manager routes payment operations to registered providers.
type Manager struct {
	providers map[domain.PaymentMethod]Provider
	logger    Logger
}

// ManagerDeps configures a Manager.
type ManagerDeps struct {
	Providers []Provider
	Logger    Logger
}

// NewManager constructs a Manager from the given providers.
func NewManager(deps ManagerDeps) (*Manager, error) {
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	providers := make(map[domain.PaymentMethod]Provider, len(deps.Providers))
	for _, p := range deps.Providers {
		if p == nil {
			return nil, errors.New("payments: nil provider")
		}
		method := p.Method()
		if !domain.KnownPaymentMethod(method) {
			return nil, fmt.Errorf("payments: provider registered for unknown method %q", method)
		}
		if _, ok := providers[method]; ok {
			return nil, fmt.Errorf("payments: duplicate provider for method %q", method)
		}
		providers[method] = p
	}
	return &Manager{providers: providers, logger: logger}, nil
}

// Resolve returns the provider for the given method.
func (m *Manager) Resolve(method domain.PaymentMethod) (Provider, error) {
	if m == nil {
		return nil, errors.New("payments: manager is nil")
	}
	normalized := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	provider, ok := m.providers[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return provider, nil
}

// Methods lists the registered payment methods in stable order.
func (m *Manager) Methods() []domain.PaymentMethod {
	if m == nil {
		return nil
	}
	methods := make([]domain.PaymentMethod, 0, len(m.providers))
	for method := range m.providers {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

// CreatePayment initiates a payment through the provider for req.Order.PaymentMethod.
func (m *Manager) CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResult, error) {
	provider, err := m.Resolve(req.Order.PaymentMethod)
	if err != nil {
		return CreatePaymentResult{}, err
	}
	result, err := provider.CreatePayment(ctx, req)
	if err != nil {
		return CreatePaymentResult{}, err
	}
	m.logger(ctx, "payments.created", map[string]any{
		"orderId": req.Order.ID,
		"method":  string(req.Order.PaymentMethod),
		"offline": result.Offline,
	})
	return result, nil
}

// VerifyCallback verifies a gateway notification through the provider for method.
func (m *Manager) VerifyCallback(ctx context.Context, method domain.PaymentMethod, req CallbackRequest) (CallbackResult, error) {
	provider, err := m.Resolve(method)
	if err != nil {
		return CallbackResult{}, err
	}
	result, err := provider.VerifyCallback(ctx, req)
	if err != nil {
		m.logger(ctx, "payments.callback.rejected", map[string]any{
			"method":  string(method),
			"channel": string(req.Channel),
			"error":   err.Error(),
		})
		return CallbackResult{}, err
	}
	m.logger(ctx, "payments.callback.verified", map[string]any{
		"method":  string(method),
		"channel": string(req.Channel),
		"orderId": result.OrderID,
		"success": result.Success,
	})
	return result, nil
}
