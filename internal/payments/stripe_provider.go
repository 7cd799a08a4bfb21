package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/config"
)

const stripeOrderIDMetadataKey = "orderId"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderDeps configures the Stripe provider.
type StripeProviderDeps struct {
	Config   config.StripeConfig
	Logger   Logger
	Sessions stripeSessionAPI
}

// StripeProvider drives Stripe Checkout sessions and webhook verification.
type StripeProvider struct {
	sessions      stripeSessionAPI
	webhookSecret string
	logger        Logger
}

// NewStripeProvider constructs a Stripe Provider.
func NewStripeProvider(deps StripeProviderDeps) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(deps.Config.APIKey)
	sessions := deps.Sessions
	if sessions == nil {
		if apiKey == "" {
			return nil, errors.New("payments: stripe api key is required")
		}
		sessions = client.New(apiKey, nil).CheckoutSessions
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		sessions:      sessions,
		webhookSecret: strings.TrimSpace(deps.Config.WebhookSecret),
		logger:        logger,
	}, nil
}

// Method reports the payment method this provider serves.
func (p *StripeProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodStripe
}

// CreatePayment opens a Checkout session for the order total.
func (p *StripeProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResult, error) {
	if p == nil {
		return CreatePaymentResult{}, errors.New("payments: stripe provider is nil")
	}
	if req.Order.ID == "" {
		return CreatePaymentResult{}, errors.New("payments: order id is required")
	}
	if req.Order.Total <= 0 {
		return CreatePaymentResult{}, fmt.Errorf("payments: invalid order total %d", req.Order.Total)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.ReturnURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(req.ReturnURL + "?session_id={CHECKOUT_SESSION_ID}"),
		Metadata:   map[string]string{stripeOrderIDMetadataKey: req.Order.ID},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				// VND is a zero-decimal currency in Stripe.
				Currency:   stripe.String("vnd"),
				UnitAmount: stripe.Int64(req.Order.Total),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Don hang %s", req.Order.ID)),
				},
			},
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.Order.ID)

	session, err := p.sessions.New(params)
	if err != nil {
		return CreatePaymentResult{}, fmt.Errorf("payments: create stripe session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session_created", map[string]any{
		"orderId":   req.Order.ID,
		"sessionId": session.ID,
	})
	return CreatePaymentResult{PayURL: session.URL, Reference: session.ID}, nil
}

// VerifyCallback checks a webhook event or return redirect against Stripe.
func (p *StripeProvider) VerifyCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	if p == nil {
		return CallbackResult{}, errors.New("payments: stripe provider is nil")
	}
	if req.Channel == ChannelIPN {
		return p.verifyWebhook(req)
	}
	return p.verifyReturn(ctx, req)
}

func (p *StripeProvider) verifyWebhook(req CallbackRequest) (CallbackResult, error) {
	if p.webhookSecret == "" {
		return CallbackResult{}, errors.New("payments: stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEvent(req.Body, req.Header.Get("Stripe-Signature"), p.webhookSecret)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	orderID := session.Metadata[stripeOrderIDMetadataKey]
	if orderID == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing order metadata", ErrMalformedCallback)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return CallbackResult{
			OrderID:       orderID,
			Success:       session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
			Amount:        session.AmountTotal,
			TransactionID: session.ID,
		}, nil
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		return CallbackResult{
			OrderID:       orderID,
			Success:       false,
			Amount:        session.AmountTotal,
			TransactionID: session.ID,
			FailureReason: string(event.Type),
		}, nil
	default:
		return CallbackResult{}, fmt.Errorf("%w: unhandled event type %s", ErrMalformedCallback, event.Type)
	}
}

func (p *StripeProvider) verifyReturn(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	sessionID := req.Params.Get("session_id")
	if sessionID == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing session_id", ErrMalformedCallback)
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := p.sessions.Get(sessionID, params)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("payments: lookup stripe session: %w", err)
	}
	orderID := session.Metadata[stripeOrderIDMetadataKey]
	if orderID == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing order metadata", ErrMalformedCallback)
	}
	result := CallbackResult{
		OrderID:       orderID,
		Success:       session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:        session.AmountTotal,
		TransactionID: session.ID,
	}
	if !result.Success {
		result.FailureReason = fmt.Sprintf("stripe payment status %s", session.PaymentStatus)
	}
	return result, nil
}
