package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tradebot/internal/api/dto"
	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/service"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// ListingsHandler exposes listing registry administration.
type ListingsHandler struct {
	listings *service.ListingService
}

// NewListingsHandler constructs handler.
func NewListingsHandler(listings *service.ListingService) *ListingsHandler {
	return &ListingsHandler{listings: listings}
}

// Create registers a posted listing.
func (h *ListingsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	listing, err := h.listings.Create(c.UserContext(), service.ListingCreateInput{
		OwnerID: req.OwnerID,
		Kind:    req.Kind,
		Location: domain.ListingLocation{
			ChannelID:  req.ChannelID,
			MessageIDs: req.MessageIDs,
		},
		Payload: req.Payload,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewListingResponse(*listing)})
}

// Get returns one listing.
func (h *ListingsHandler) Get(c *fiber.Ctx) error {
	listing, err := h.listings.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewListingResponse(*listing)})
}

// List returns an owner's listings. Pass active=true to hide retired ones.
func (h *ListingsHandler) List(c *fiber.Ctx) error {
	owner := c.Query("owner")
	if owner == "" {
		return apperrors.NewValidationError("owner query parameter is required", nil)
	}
	listings, err := h.listings.ListByOwner(c.UserContext(), owner, c.QueryBool("active", false))
	if err != nil {
		return err
	}
	resp := make([]dto.ListingResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, dto.NewListingResponse(l))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Bump refreshes a listing subject to the cooldown.
func (h *ListingsHandler) Bump(c *fiber.Ctx) error {
	listing, err := h.listings.Bump(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewListingResponse(*listing)})
}

// Touch records an interaction.
func (h *ListingsHandler) Touch(c *fiber.Ctx) error {
	if err := h.listings.Touch(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdatePayload replaces the listing content.
func (h *ListingsHandler) UpdatePayload(c *fiber.Ctx) error {
	var req dto.UpdateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return apperrors.NewValidationError("payload must be a JSON document", nil)
	}
	if err := h.listings.UpdatePayload(c.UserContext(), c.Params("id"), req.Payload); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Deactivate retires a listing.
func (h *ListingsHandler) Deactivate(c *fiber.Ctx) error {
	if err := h.listings.Deactivate(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
