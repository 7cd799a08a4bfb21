package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

type fakeSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (f *fakeSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	if f.err != nil {
		return services.SystemHealthReport{}, f.err
	}
	return f.report, nil
}

func TestHealthzAlwaysOK(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzReportsChecks(t *testing.T) {
	system := &fakeSystemService{
		report: services.SystemHealthReport{
			SystemHealthReport: domain.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
				},
				GeneratedAt: time.Date(2024, 11, 3, 9, 30, 0, 0, time.UTC),
			},
			Version:     "1.4.0",
			Environment: "staging",
			Uptime:      90 * time.Second,
		},
	}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(HealthHandlersDeps{System: system})))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload readinessPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" || payload.Version != "1.4.0" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Checks["firestore"].Status != "ok" {
		t.Fatalf("checks = %+v", payload.Checks)
	}
}

func TestReadyzUnavailableOnErrorStatus(t *testing.T) {
	system := &fakeSystemService{
		report: services.SystemHealthReport{
			SystemHealthReport: domain.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError, Error: "timeout"},
				},
			},
		},
	}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(HealthHandlersDeps{System: system})))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadyzCollectFailure(t *testing.T) {
	system := &fakeSystemService{err: errors.New("collect failed")}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(HealthHandlersDeps{System: system})))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRouterNotFoundIsJSON(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "route_not_found" {
		t.Fatalf("payload = %v", payload)
	}
}
