package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	mode      string
	startedAt time.Time
	checks    []Check
	timeout   time.Duration
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Readiness runs every check with a
// shared timeout.
func NewHealthHandler(mode string, startedAt time.Time, checks []Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		startedAt: startedAt,
		checks:    checks,
		timeout:   3 * time.Second,
		logger:    logger,
	}
}

// HealthCheck reports that the process is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready runs the readiness checks and answers 503 when any of them fails.
// GET /api/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[c.Name] = err.Error()
			h.logger.WarnContext(ctx, "handler: readiness check failed",
				slog.String("check", c.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		results[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": results})
}
