package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tradebot/internal/api/dto"
	"github.com/spec-kit/tradebot/internal/service"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// ReputationHandler exposes public reputation lookups.
type ReputationHandler struct {
	reputation *service.ReputationService
}

// NewReputationHandler constructs handler.
func NewReputationHandler(reputation *service.ReputationService) *ReputationHandler {
	return &ReputationHandler{reputation: reputation}
}

// Get returns one user's aggregate.
func (h *ReputationHandler) Get(c *fiber.Ctx) error {
	userID := c.Params("user")
	rec, found, err := h.reputation.Get(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NewNotFound("reputation", map[string]any{"user_id": userID})
	}
	return c.JSON(fiber.Map{"data": dto.NewReputationResponse(*rec)})
}

// Top returns the leaderboard by average stars.
func (h *ReputationHandler) Top(c *fiber.Ctx) error {
	records, err := h.reputation.Top(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	resp := make([]dto.ReputationResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, dto.NewReputationResponse(rec))
	}
	return c.JSON(fiber.Map{"data": resp})
}
