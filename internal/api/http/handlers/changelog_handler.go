package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// ChangelogHandler serves a ticket's audit trail.
type ChangelogHandler struct {
	changelog *service.ChangelogService
}

// NewChangelogHandler constructs handler.
func NewChangelogHandler(changelog *service.ChangelogService) *ChangelogHandler {
	return &ChangelogHandler{changelog: changelog}
}

// ListEntries GET /tickets/:id/changelog?limit=n. Without a limit the whole
// trail is returned in order.
func (h *ChangelogHandler) ListEntries(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apperrors.NewValidationError("limit must be a positive integer", map[string]any{"limit": raw})
		}
		limit = n
	}

	items := make([]dto.ChangelogEntryResponse, 0)
	for entry, err := range h.changelog.Entries(c.UserContext(), c.Params("id")) {
		if err != nil {
			return err
		}
		items = append(items, dto.NewChangelogEntryResponse(entry))
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return c.JSON(fiber.Map{"data": items})
}
