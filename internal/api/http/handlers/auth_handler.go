package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tradebot/internal/api/dto"
	"github.com/spec-kit/tradebot/internal/service"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// AuthHandler issues admin tokens.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login authenticates the configured administrator.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	token, meta, err := h.auth.LoginAdmin(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   meta.ExpiresAt,
	}})
}
