package handlers

import (
	"net/http"
	"time"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/httpx"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

type healthCheckPayload struct {
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type readinessPayload struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	GeneratedAt time.Time                     `json:"generatedAt"`
	Checks      map[string]healthCheckPayload `json:"checks"`
}

// HealthHandlersDeps bundles collaborators for HealthHandlers.
type HealthHandlersDeps struct {
	System services.SystemService
}

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs a new HealthHandlers instance.
func NewHealthHandlers(deps HealthHandlersDeps) *HealthHandlers {
	return &HealthHandlers{system: deps.System}
}

// Healthz reports process liveness only; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz probes dependencies and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_unavailable", "unable to collect health report", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]healthCheckPayload, len(report.Checks))
	for name, check := range report.Checks {
		payload := healthCheckPayload{
			Status: string(check.Status),
			Detail: check.Detail,
			Error:  check.Error,
		}
		if check.Latency > 0 {
			payload.Latency = check.Latency.String()
		}
		checks[name] = payload
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, status, readinessPayload{
		Status:      string(report.Status),
		Version:     report.Version,
		Environment: report.Environment,
		Uptime:      report.Uptime.String(),
		GeneratedAt: report.GeneratedAt,
		Checks:      checks,
	})
}
