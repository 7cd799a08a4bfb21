package config

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour

	// Authoritative pricing policy. The storefront client keeps a display-only
	// copy; the values here are the ones orders are priced with.
	defaultDiscountThreshold int64 = 300_000
	defaultDiscountAmount    int64 = 15_000
	defaultShippingFee       int64 = 0

	defaultVNPayPayURL  = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	defaultMoMoEndpoint = "https://test-payment.momo.vn/v2/gateway/api/create"

	envPrefix = "API_"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Frontend    FrontendConfig
	Pricing     PricingConfig
	VNPay       VNPayConfig
	MoMo        MoMoConfig
	Stripe      StripeConfig
	Idempotency IdempotencyConfig
	Security    SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig stores the order event topic settings.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// FrontendConfig points at the customer-facing site for post-payment redirects.
type FrontendConfig struct {
	BaseURL string
}

// PricingConfig holds the order pricing policy in VND.
type PricingConfig struct {
	DiscountThreshold int64
	DiscountAmount    int64
	ShippingFee       int64
}

// VNPayConfig carries the merchant credentials for the VNPay gateway.
type VNPayConfig struct {
	TMNCode    string
	HashSecret string
	PayURL     string
}

// MoMoConfig carries the merchant credentials for the MoMo gateway.
type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
}

// StripeConfig carries the Stripe API credentials.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecurityConfig groups deployment environment metadata.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the env file read during loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap provides explicit values and disables process env lookups. Intended for tests.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
		o.useSystemEnv = false
	}
}

// WithSecretResolver wires a resolver for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load reads configuration from the env file and process environment, resolves
// secret references, and validates required fields.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) string {
		return strings.TrimSpace(values[envPrefix+key])
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         defaulted(lookup("SERVER_PORT"), defaultPort),
			ReadTimeout:  durationValue(lookup("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationValue(lookup("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationValue(lookup("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    lookup("FIRESTORE_PROJECT_ID"),
			EmulatorHost: lookup("FIRESTORE_EMULATOR_HOST"),
		},
		PubSub: PubSubConfig{
			ProjectID:        defaulted(lookup("PUBSUB_PROJECT_ID"), lookup("FIRESTORE_PROJECT_ID")),
			OrderEventsTopic: lookup("PUBSUB_ORDER_EVENTS_TOPIC"),
		},
		Frontend: FrontendConfig{
			BaseURL: strings.TrimRight(lookup("FRONTEND_BASE_URL"), "/"),
		},
		Pricing: PricingConfig{
			DiscountThreshold: int64Value(lookup("PRICING_DISCOUNT_THRESHOLD"), defaultDiscountThreshold),
			DiscountAmount:    int64Value(lookup("PRICING_DISCOUNT_AMOUNT"), defaultDiscountAmount),
			ShippingFee:       int64Value(lookup("PRICING_SHIPPING_FEE"), defaultShippingFee),
		},
		VNPay: VNPayConfig{
			TMNCode:    lookup("VNPAY_TMN_CODE"),
			HashSecret: lookup("VNPAY_HASH_SECRET"),
			PayURL:     defaulted(lookup("VNPAY_PAY_URL"), defaultVNPayPayURL),
		},
		MoMo: MoMoConfig{
			PartnerCode: lookup("MOMO_PARTNER_CODE"),
			AccessKey:   lookup("MOMO_ACCESS_KEY"),
			SecretKey:   lookup("MOMO_SECRET_KEY"),
			Endpoint:    defaulted(lookup("MOMO_ENDPOINT"), defaultMoMoEndpoint),
		},
		Stripe: StripeConfig{
			APIKey:        lookup("STRIPE_API_KEY"),
			WebhookSecret: lookup("STRIPE_WEBHOOK_SECRET"),
		},
		Idempotency: IdempotencyConfig{
			Header: defaulted(lookup("IDEMPOTENCY_HEADER"), defaultIdempotencyHeader),
			TTL:    durationValue(lookup("IDEMPOTENCY_TTL"), defaultIdempotencyTTL),
		},
		Security: SecurityConfig{
			Environment: defaulted(lookup("SECURITY_ENVIRONMENT"), "local"),
		},
	}

	if err := resolveSecrets(ctx, &cfg, options.secret); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	targets := []*string{
		&cfg.VNPay.HashSecret,
		&cfg.MoMo.AccessKey,
		&cfg.MoMo.SecretKey,
		&cfg.Stripe.APIKey,
		&cfg.Stripe.WebhookSecret,
	}
	for _, target := range targets {
		value := strings.TrimSpace(*target)
		if !strings.HasPrefix(value, "secret://") {
			continue
		}
		if resolver == nil {
			return &SecretError{Ref: value, Err: fmt.Errorf("secret resolver not configured")}
		}
		resolved, err := resolver.ResolveSecret(ctx, value)
		if err != nil {
			return &SecretError{Ref: value, Err: err}
		}
		*target = strings.TrimSpace(resolved)
	}
	return nil
}

func validate(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if strings.TrimSpace(cfg.Frontend.BaseURL) == "" {
		missing = append(missing, "Frontend.BaseURL")
	}
	if cfg.Pricing.DiscountThreshold < 0 || cfg.Pricing.DiscountAmount < 0 || cfg.Pricing.ShippingFee < 0 {
		missing = append(missing, "Pricing")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{fields: missing}
	}
	return nil
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)

	if options.envFile != "" {
		fileValues, err := readEnvFile(options.envFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 || !strings.HasPrefix(parts[0], envPrefix) {
				continue
			}
			values[parts[0]] = parts[1]
		}
	}

	for k, v := range options.envMap {
		values[k] = v
	}

	return values, nil
}

func readEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		if key == "" {
			continue
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func defaulted(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func durationValue(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func int64Value(value string, fallback int64) int64 {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
