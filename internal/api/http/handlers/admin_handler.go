package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// SweepRunner triggers one guarded auto-close run.
type SweepRunner interface {
	RunOnce(ctx context.Context, now time.Time) (service.SweepResult, error)
}

// AdminHandler exposes operational endpoints.
type AdminHandler struct {
	sweeps  SweepRunner
	clock   clock.Clock
	metrics *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(sweeps SweepRunner, clk clock.Clock, metrics *observability.Metrics) *AdminHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &AdminHandler{sweeps: sweeps, clock: clk, metrics: metrics}
}

// RunSweep POST /admin/sweeps. An optional "now" replays the sweep as of an
// earlier instant.
func (h *AdminHandler) RunSweep(c *fiber.Ctx) error {
	var req dto.RunSweepRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	now := h.clock.Now()
	if req.Now != nil {
		// A future now would close tickets before their window ran out.
		if req.Now.After(now) {
			return apperrors.NewValidationError("now must not be in the future", map[string]any{
				"now":    req.Now.UTC(),
				"server": now,
			})
		}
		now = req.Now.UTC()
	}

	result, err := h.sweeps.RunOnce(c.UserContext(), now)
	if errors.Is(err, worker.ErrSweepLocked) {
		return apperrors.NewDomainError(apperrors.CodeConflict, "a sweep is already running", http.StatusConflict, nil)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse(result)})
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
