package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/config"
)

const (
	momoRequestType = "captureWallet"
	momoLanguage    = "vi"
	momoSuccessCode = 0
)

// MoMoProviderDeps configures the MoMo provider.
type MoMoProviderDeps struct {
	Config     config.MoMoConfig
	HTTPClient *http.Client
	Logger     Logger
	Clock      func() time.Time
}

// MoMoProvider creates captureWallet payments and verifies MoMo callbacks.
type MoMoProvider struct {
	partnerCode string
	accessKey   string
	secretKey   string
	endpoint    string
	httpClient  *http.Client
	logger      Logger
	now         func() time.Time
}

// NewMoMoProvider constructs a MoMo Provider.
func NewMoMoProvider(deps MoMoProviderDeps) (*MoMoProvider, error) {
	partnerCode := strings.TrimSpace(deps.Config.PartnerCode)
	accessKey := strings.TrimSpace(deps.Config.AccessKey)
	secretKey := strings.TrimSpace(deps.Config.SecretKey)
	endpoint := strings.TrimSpace(deps.Config.Endpoint)
	if partnerCode == "" {
		return nil, errors.New("payments: momo partner code is required")
	}
	if accessKey == "" {
		return nil, errors.New("payments: momo access key is required")
	}
	if secretKey == "" {
		return nil, errors.New("payments: momo secret key is required")
	}
	if endpoint == "" {
		return nil, errors.New("payments: momo endpoint is required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &MoMoProvider{
		partnerCode: partnerCode,
		accessKey:   accessKey,
		secretKey:   secretKey,
		endpoint:    endpoint,
		httpClient:  httpClient,
		logger:      logger,
		now:         clock,
	}, nil
}

// Method reports the payment method this provider serves.
func (p *MoMoProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodMoMo
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Language    string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	RequestID  string `json:"requestId"`
}

type momoCallbackPayload struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// CreatePayment requests a captureWallet payment and returns its pay URL.
func (p *MoMoProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResult, error) {
	if p == nil {
		return CreatePaymentResult{}, errors.New("payments: momo provider is nil")
	}
	if req.Order.ID == "" {
		return CreatePaymentResult{}, errors.New("payments: order id is required")
	}
	if req.Order.Total <= 0 {
		return CreatePaymentResult{}, fmt.Errorf("payments: invalid order total %d", req.Order.Total)
	}

	requestID := fmt.Sprintf("%s-%d", req.Order.ID, p.now().UnixMilli())
	orderInfo := fmt.Sprintf("Thanh toan don hang %s: %s", req.Order.ID, FormatVND(req.Order.Total))

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		p.accessKey, req.Order.Total, "", req.NotifyURL, req.Order.ID, orderInfo,
		p.partnerCode, req.ReturnURL, requestID, momoRequestType,
	)

	payload := momoCreateRequest{
		PartnerCode: p.partnerCode,
		AccessKey:   p.accessKey,
		RequestID:   requestID,
		Amount:      req.Order.Total,
		OrderID:     req.Order.ID,
		OrderInfo:   orderInfo,
		RedirectURL: req.ReturnURL,
		IPNURL:      req.NotifyURL,
		ExtraData:   "",
		RequestType: momoRequestType,
		Language:    momoLanguage,
		Signature:   hmacSHA256Hex(p.secretKey, raw),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CreatePaymentResult{}, fmt.Errorf("payments: encode momo request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return CreatePaymentResult{}, fmt.Errorf("payments: build momo request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return CreatePaymentResult{}, fmt.Errorf("payments: call momo: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CreatePaymentResult{}, fmt.Errorf("payments: read momo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return CreatePaymentResult{}, fmt.Errorf("payments: momo returned status %d", resp.StatusCode)
	}

	var decoded momoCreateResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return CreatePaymentResult{}, fmt.Errorf("payments: decode momo response: %w", err)
	}
	if decoded.ResultCode != momoSuccessCode {
		return CreatePaymentResult{}, fmt.Errorf("payments: momo rejected payment: %s (code %d)", decoded.Message, decoded.ResultCode)
	}
	if decoded.PayURL == "" {
		return CreatePaymentResult{}, errors.New("payments: momo response missing pay url")
	}

	p.logger(ctx, "payments.momo.payment_created", map[string]any{
		"orderId":   req.Order.ID,
		"requestId": requestID,
		"amount":    req.Order.Total,
	})
	return CreatePaymentResult{PayURL: decoded.PayURL, Reference: requestID}, nil
}

// VerifyCallback validates the signature of a MoMo IPN body or return query.
func (p *MoMoProvider) VerifyCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	if p == nil {
		return CallbackResult{}, errors.New("payments: momo provider is nil")
	}

	payload, err := p.decodeCallback(req)
	if err != nil {
		return CallbackResult{}, err
	}
	if payload.Signature == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing signature", ErrMalformedCallback)
	}
	if payload.OrderID == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing orderId", ErrMalformedCallback)
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		p.accessKey, payload.Amount, payload.ExtraData, payload.Message, payload.OrderID,
		payload.OrderInfo, payload.OrderType, payload.PartnerCode, payload.PayType,
		payload.RequestID, payload.ResponseTime, payload.ResultCode, payload.TransID,
	)
	if !signatureEqual(hmacSHA256Hex(p.secretKey, raw), payload.Signature) {
		return CallbackResult{}, ErrInvalidSignature
	}

	result := CallbackResult{
		OrderID:       payload.OrderID,
		Success:       payload.ResultCode == momoSuccessCode,
		Amount:        payload.Amount,
		TransactionID: fmt.Sprintf("%d", payload.TransID),
	}
	if !result.Success {
		result.FailureReason = fmt.Sprintf("momo result code %d: %s", payload.ResultCode, payload.Message)
	}
	return result, nil
}

func (p *MoMoProvider) decodeCallback(req CallbackRequest) (momoCallbackPayload, error) {
	var payload momoCallbackPayload
	if req.Channel == ChannelIPN {
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			return momoCallbackPayload{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
		return payload, nil
	}

	// Return-channel parameters arrive in the query string.
	get := req.Params.Get
	payload.PartnerCode = get("partnerCode")
	payload.OrderID = get("orderId")
	payload.RequestID = get("requestId")
	payload.OrderInfo = get("orderInfo")
	payload.OrderType = get("orderType")
	payload.Message = get("message")
	payload.PayType = get("payType")
	payload.ExtraData = get("extraData")
	payload.Signature = get("signature")
	var err error
	if payload.Amount, err = parseInt64(get("amount")); err != nil {
		return momoCallbackPayload{}, fmt.Errorf("%w: bad amount %q", ErrMalformedCallback, get("amount"))
	}
	if payload.TransID, err = parseInt64(get("transId")); err != nil {
		return momoCallbackPayload{}, fmt.Errorf("%w: bad transId %q", ErrMalformedCallback, get("transId"))
	}
	if payload.ResponseTime, err = parseInt64(get("responseTime")); err != nil {
		return momoCallbackPayload{}, fmt.Errorf("%w: bad responseTime %q", ErrMalformedCallback, get("responseTime"))
	}
	code, err := parseInt64(get("resultCode"))
	if err != nil {
		return momoCallbackPayload{}, fmt.Errorf("%w: bad resultCode %q", ErrMalformedCallback, get("resultCode"))
	}
	payload.ResultCode = int(code)
	return payload, nil
}

func parseInt64(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}
