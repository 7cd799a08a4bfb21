package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2024, time.November, 3, 9, 30, 0, 0, time.UTC)

func newTestMiddleware(store Store) func(http.Handler) http.Handler {
	return Middleware(store, WithClock(func() time.Time { return fixedTime }))
}

func keyedRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewareMissingKeyPassesThrough(t *testing.T) {
	called := false
	handler := newTestMiddleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest("", `{"items": []}`))
	if !called {
		t.Fatal("handler skipped without a key")
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	calls := 0
	handler := newTestMiddleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId": "ord_1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest("retry-1", `{"items": [1]}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyedRequest("retry-1", `{"items": [1]}`))
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d, want 201", second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatal("replay header missing")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("Content-Type = %q", second.Header().Get("Content-Type"))
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body = %s, want %s", second.Body.String(), first.Body.String())
	}
}

func TestMiddlewareRejectsReusedKey(t *testing.T) {
	handler := newTestMiddleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest("same-key", `{"items": [1]}`))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyedRequest("same-key", `{"items": [2]}`))
	if second.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", second.Code)
	}
	assertErrorCode(t, second.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewareRejectsInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	req := keyedRequest("slow-key", `{"items": [1]}`)

	// Seed the claim the way the middleware would scope and fingerprint it.
	body, err := bufferBody(req)
	if err != nil {
		t.Fatalf("bufferBody: %v", err)
	}
	uid := callerUID(req.Context())
	if _, err := store.Claim(req.Context(), "slow-key|"+uid, fingerprint(req, body, uid), fixedTime, time.Hour); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	handler := newTestMiddleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler ran while the key was in flight")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	assertErrorCode(t, rec.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareReleasesKeyWhenCompleteFails(t *testing.T) {
	store := &stubStore{failComplete: true}
	handler := newTestMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest("fail-key", `{"items": [1]}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	assertErrorCode(t, rec.Body.Bytes(), "idempotency_store_error")
	if !store.forgotten {
		t.Fatal("claim not released after a failed save")
	}
}

func TestMiddlewareExpiredClaimRunsAgain(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	clock := fixedTime
	handler := Middleware(store,
		WithTTL(time.Minute),
		WithClock(func() time.Time { return clock }),
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest("k", `{"items": [1]}`))
	clock = fixedTime.Add(2 * time.Minute)
	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest("k", `{"items": [1]}`))
	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2 after expiry", calls)
	}
}

type stubStore struct {
	failComplete bool
	forgotten    bool
}

func (s *stubStore) Claim(context.Context, string, string, time.Time, time.Duration) (Claim, error) {
	return Claim{State: StateNew}, nil
}

func (s *stubStore) Complete(context.Context, string, StoredResponse, time.Time, time.Duration) error {
	if s.failComplete {
		return errors.New("complete failed")
	}
	return nil
}

func (s *stubStore) Forget(context.Context, string) error {
	s.forgotten = true
	return nil
}

func assertErrorCode(t *testing.T, payload []byte, want string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if body.Error != want {
		t.Fatalf("error code = %q, want %q", body.Error, want)
	}
}
