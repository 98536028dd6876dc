package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// WatchersHandler manages ticket watchers.
type WatchersHandler struct {
	watchers *service.WatcherService
}

// NewWatchersHandler constructs handler.
func NewWatchersHandler(watchers *service.WatcherService) *WatchersHandler {
	return &WatchersHandler{watchers: watchers}
}

// AddWatcher POST /tickets/:id/watchers.
func (h *WatchersHandler) AddWatcher(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AddWatcherRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	watcher, err := h.watchers.Add(c.UserContext(), actor, c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewWatcherResponse(*watcher)})
}

// RemoveWatcher DELETE /tickets/:id/watchers/:watcherId.
func (h *WatchersHandler) RemoveWatcher(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.watchers.Remove(c.UserContext(), actor, c.Params("id"), c.Params("watcherId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListWatchers GET /tickets/:id/watchers.
func (h *WatchersHandler) ListWatchers(c *fiber.Ctx) error {
	list, err := h.watchers.List(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.WatcherResponse, 0, len(list))
	for _, w := range list {
		items = append(items, dto.NewWatcherResponse(w))
	}
	return c.JSON(fiber.Map{"data": items})
}
