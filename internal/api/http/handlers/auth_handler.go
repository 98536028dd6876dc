package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// AuthHandler issues bearer tokens for local development. Identity is owned
// by an upstream provider in real deployments, so the route is only mounted
// outside production.
type AuthHandler struct {
	tokens *auth.TokenManager
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// IssueToken POST /auth/dev-token.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}
	if !req.Role.Valid() || req.Role == domain.RoleSystem {
		return apperrors.NewValidationError("role must be customer, agent or admin", map[string]any{"role": req.Role})
	}

	token, expiresAt, err := h.tokens.GenerateToken(domain.Actor{UserID: req.UserID, Name: req.Name, Role: req.Role})
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TokenResponse{AccessToken: token, ExpiresAt: expiresAt}})
}
