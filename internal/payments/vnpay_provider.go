package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/config"
)

const (
	vnpVersion        = "2.1.0"
	vnpCommandPay     = "pay"
	vnpCurrency       = "VND"
	vnpLocale         = "vn"
	vnpOrderType      = "other"
	vnpSuccessCode    = "00"
	vnpDateLayout     = "20060102150405"
	vnpSessionTimeout = 15 * time.Minute
)

// VNPay timestamps are expressed in Indochina time regardless of server locale.
var vnpLocation = time.FixedZone("ICT", 7*60*60)

// VNPayProviderDeps configures the VNPay provider.
type VNPayProviderDeps struct {
	Config config.VNPayConfig
	Logger Logger
	Clock  func() time.Time
}

// VNPayProvider builds signed pay URLs and verifies VNPay callbacks.
type VNPayProvider struct {
	tmnCode string
	secret  string
	payURL  string
	logger  Logger
	now     func() time.Time
}

// NewVNPayProvider constructs a VNPay Provider.
func NewVNPayProvider(deps VNPayProviderDeps) (*VNPayProvider, error) {
	tmnCode := strings.TrimSpace(deps.Config.TMNCode)
	secret := strings.TrimSpace(deps.Config.HashSecret)
	payURL := strings.TrimSpace(deps.Config.PayURL)
	if tmnCode == "" {
		return nil, errors.New("payments: vnpay tmn code is required")
	}
	if secret == "" {
		return nil, errors.New("payments: vnpay hash secret is required")
	}
	if payURL == "" {
		return nil, errors.New("payments: vnpay pay url is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &VNPayProvider{
		tmnCode: tmnCode,
		secret:  secret,
		payURL:  payURL,
		logger:  logger,
		now:     clock,
	}, nil
}

// Method reports the payment method this provider serves.
func (p *VNPayProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodVNPay
}

// CreatePayment builds the signed redirect URL for the VNPay payment page.
func (p *VNPayProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResult, error) {
	if p == nil {
		return CreatePaymentResult{}, errors.New("payments: vnpay provider is nil")
	}
	if req.Order.ID == "" {
		return CreatePaymentResult{}, errors.New("payments: order id is required")
	}
	if req.Order.Total <= 0 {
		return CreatePaymentResult{}, fmt.Errorf("payments: invalid order total %d", req.Order.Total)
	}

	created := p.now().In(vnpLocation)
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", vnpCommandPay)
	params.Set("vnp_TmnCode", p.tmnCode)
	// VNPay expects the amount multiplied by 100 to drop the decimal part.
	params.Set("vnp_Amount", strconv.FormatInt(req.Order.Total*100, 10))
	params.Set("vnp_CurrCode", vnpCurrency)
	params.Set("vnp_TxnRef", req.Order.ID)
	params.Set("vnp_OrderInfo", fmt.Sprintf("Thanh toan don hang %s: %s", req.Order.ID, FormatVND(req.Order.Total)))
	params.Set("vnp_OrderType", vnpOrderType)
	params.Set("vnp_Locale", vnpLocale)
	params.Set("vnp_ReturnUrl", req.ReturnURL)
	params.Set("vnp_IpAddr", clientIP)
	params.Set("vnp_CreateDate", created.Format(vnpDateLayout))
	params.Set("vnp_ExpireDate", created.Add(vnpSessionTimeout).Format(vnpDateLayout))

	canonical := vnpCanonical(params)
	signature := hmacSHA512Hex(p.secret, canonical)

	payURL := fmt.Sprintf("%s?%s&vnp_SecureHash=%s", p.payURL, canonical, signature)
	p.logger(ctx, "payments.vnpay.pay_url_built", map[string]any{
		"orderId": req.Order.ID,
		"amount":  req.Order.Total,
	})
	return CreatePaymentResult{PayURL: payURL, Reference: req.Order.ID}, nil
}

// VerifyCallback validates the signature of a VNPay return or IPN request.
func (p *VNPayProvider) VerifyCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	if p == nil {
		return CallbackResult{}, errors.New("payments: vnpay provider is nil")
	}
	received := req.Params.Get("vnp_SecureHash")
	if received == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing vnp_SecureHash", ErrMalformedCallback)
	}

	signed := url.Values{}
	for key, values := range req.Params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if len(values) > 0 {
			signed.Set(key, values[0])
		}
	}
	expected := hmacSHA512Hex(p.secret, vnpCanonical(signed))
	if !signatureEqual(expected, strings.ToLower(received)) {
		return CallbackResult{}, ErrInvalidSignature
	}

	orderID := signed.Get("vnp_TxnRef")
	if orderID == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing vnp_TxnRef", ErrMalformedCallback)
	}

	rawAmount := signed.Get("vnp_Amount")
	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: bad vnp_Amount %q", ErrMalformedCallback, rawAmount)
	}

	responseCode := signed.Get("vnp_ResponseCode")
	success := responseCode == vnpSuccessCode
	if status := signed.Get("vnp_TransactionStatus"); status != "" && status != vnpSuccessCode {
		success = false
	}

	result := CallbackResult{
		OrderID:       orderID,
		Success:       success,
		Amount:        amount / 100,
		TransactionID: signed.Get("vnp_TransactionNo"),
	}
	if !success {
		result.FailureReason = fmt.Sprintf("vnpay response code %s", responseCode)
	}
	return result, nil
}

// vnpCanonical renders params as the sorted URL-encoded string VNPay signs.
func vnpCanonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(key)))
	}
	return b.String()
}
