package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/storycraft/billing/internal/transport/http/dto"
	httperrors "github.com/storycraft/billing/internal/transport/http/errors"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether one backing store answers.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	checks []ReadinessCheck
}

func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// Ready fails when any backing store is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	failed := make([]string, 0)
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			failed = append(failed, check.Name)
		}
	}
	if len(failed) > 0 {
		w.Header().Set("Retry-After", storeRetryAfterSecond)
		httperrors.Write(w, http.StatusServiceUnavailable, dto.HealthResponse{Status: "degraded", Failed: failed})
		return
	}
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}
