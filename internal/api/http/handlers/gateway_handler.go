package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tradebot/internal/api/dto"
	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/service"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// GatewayHandler receives ticket interactions forwarded by the chat-platform adapter.
type GatewayHandler struct {
	sessions *service.SessionRegistry
	listings *service.ListingService
}

// NewGatewayHandler constructs handler.
func NewGatewayHandler(sessions *service.SessionRegistry, listings *service.ListingService) *GatewayHandler {
	return &GatewayHandler{sessions: sessions, listings: listings}
}

// OpenTicket registers a freshly created ticket channel.
func (h *GatewayHandler) OpenTicket(c *fiber.Ctx) error {
	var req dto.OpenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	session, err := h.sessions.Open(c.UserContext(), service.OpenTicketInput{
		ChannelID:    req.ChannelID,
		Participants: req.Participants,
		ListerID:     req.ListerID,
		ListingID:    req.ListingID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(session.Snapshot())})
}

// Action applies a participant button press.
func (h *GatewayHandler) Action(c *fiber.Ctx) error {
	var req dto.TicketActionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	if req.UserID == "" || req.Action == "" {
		return apperrors.NewValidationError("user_id and action are required", nil)
	}
	ticket, err := h.sessions.HandleParticipantAction(c.UserContext(), c.Params("channel"), req.UserID, req.Action)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Rating delivers a participant's vouch or the expiry of their prompt.
func (h *GatewayHandler) Rating(c *fiber.Ctx) error {
	var req dto.RatingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id is required", nil)
	}

	outcome := domain.Submitted(req.Stars, req.Comment)
	switch req.Outcome {
	case "", "submitted":
	case "timed_out":
		outcome = domain.TimedOut()
	default:
		return apperrors.NewValidationError("unknown outcome", map[string]any{"outcome": req.Outcome})
	}

	rating, err := h.sessions.HandleRating(c.UserContext(), c.Params("channel"), req.UserID, outcome)
	if err != nil {
		return err
	}
	if rating == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewRatingResponse(*rating)})
}

// ListingDecision records whether the lister wants the listing taken down.
func (h *GatewayHandler) ListingDecision(c *fiber.Ctx) error {
	var req dto.ListingDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	if err := h.sessions.HandleListingDecision(c.UserContext(), c.Params("channel"), req.UserID, req.Remove); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreateListing registers a listing the user just posted; owner_id is the poster.
func (h *GatewayHandler) CreateListing(c *fiber.Ctx) error {
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

// BumpListing bumps on behalf of the listing owner.
func (h *GatewayHandler) BumpListing(c *fiber.Ctx) error {
	userID, err := listingActor(c)
	if err != nil {
		return err
	}
	listing, err := h.listings.BumpAsOwner(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewListingResponse(*listing)})
}

// TouchListing records that a user interacted with the listing.
func (h *GatewayHandler) TouchListing(c *fiber.Ctx) error {
	if _, err := listingActor(c); err != nil {
		return err
	}
	if err := h.listings.Touch(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateListing edits the listing content on behalf of its owner.
func (h *GatewayHandler) UpdateListing(c *fiber.Ctx) error {
	var req dto.UpdateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id is required", nil)
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return apperrors.NewValidationError("payload must be a JSON document", nil)
	}
	if err := h.listings.UpdatePayloadAsOwner(c.UserContext(), c.Params("id"), req.UserID, req.Payload); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeactivateListing retires the listing on behalf of its owner.
func (h *GatewayHandler) DeactivateListing(c *fiber.Ctx) error {
	userID, err := listingActor(c)
	if err != nil {
		return err
	}
	if err := h.listings.DeactivateAsOwner(c.UserContext(), c.Params("id"), userID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func listingActor(c *fiber.Ctx) (string, error) {
	var req dto.ListingActorRequest
	if err := c.BodyParser(&req); err != nil {
		return "", apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	if req.UserID == "" {
		return "", apperrors.NewValidationError("user_id is required", nil)
	}
	return req.UserID, nil
}
