package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/auth"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

type settings struct {
	header string
	ttl    time.Duration
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// Option customises the middleware.
type Option func(*settings)

// WithHeader overrides the header carrying the idempotency key.
func WithHeader(name string) Option {
	return func(s *settings) {
		if name = strings.TrimSpace(name); name != "" {
			s.header = name
		}
	}
}

// WithTTL bounds how long completed responses stay replayable.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger injects the event logger used for store failures.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Middleware guards the route it wraps with Idempotency-Key semantics.
// Requests without the key pass straight through.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := settings{
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.header))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			// Keys are scoped per caller so two users can pick the same key.
			uid := callerUID(ctx)
			scoped := key + "|" + uid
			now := cfg.clock().UTC()

			claim, err := store.Claim(ctx, scoped, fingerprint(r, body, uid), now, cfg.ttl)
			if errors.Is(err, ErrKeyReused) {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
				return
			}
			if err != nil {
				cfg.logger(ctx, "idempotency.claim_failed", map[string]any{"error": err.Error()})
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
				return
			}

			switch claim.State {
			case StateReplay:
				writeReplay(w, claim.Response)
				return
			case StateInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			capture := newCaptureWriter(w)
			next.ServeHTTP(capture, r)

			stored := StoredResponse{
				Status: capture.status(),
				Header: storableHeader(capture.header),
				Body:   capture.body.Bytes(),
			}
			if err := store.Complete(ctx, scoped, stored, cfg.clock().UTC(), cfg.ttl); err != nil {
				cfg.logger(ctx, "idempotency.complete_failed", map[string]any{"error": err.Error()})
				if err := store.Forget(ctx, scoped); err != nil {
					cfg.logger(ctx, "idempotency.forget_failed", map[string]any{"error": err.Error()})
				}
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
				return
			}
			capture.flush()
		})
	}
}

// bufferBody reads the request body and rewinds it for the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func callerUID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func fingerprint(r *http.Request, body []byte, uid string) string {
	sum := sha256.Sum256(body)
	parts := strings.Join([]string{r.Method, r.URL.Path, uid, hex.EncodeToString(sum[:])}, "|")
	digest := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(digest[:])
}

func writeReplay(w http.ResponseWriter, resp StoredResponse) {
	for name, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// captureWriter buffers the handler's response so it can be persisted
// before reaching the client.
type captureWriter struct {
	parent     http.ResponseWriter
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func newCaptureWriter(parent http.ResponseWriter) *captureWriter {
	return &captureWriter{parent: parent, header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header {
	return c.header
}

func (c *captureWriter) WriteHeader(status int) {
	if c.statusCode == 0 && status > 0 {
		c.statusCode = status
	}
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.statusCode == 0 {
		c.statusCode = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *captureWriter) status() int {
	if c.statusCode == 0 {
		return http.StatusOK
	}
	return c.statusCode
}

func (c *captureWriter) flush() {
	dst := c.parent.Header()
	for name, values := range c.header {
		dst[name] = values
	}
	c.parent.WriteHeader(c.status())
	if c.body.Len() > 0 {
		_, _ = c.parent.Write(c.body.Bytes())
	}
}
