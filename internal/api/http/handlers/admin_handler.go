package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tradebot/internal/api/dto"
	"github.com/spec-kit/tradebot/internal/auth"
	"github.com/spec-kit/tradebot/internal/observability"
	"github.com/spec-kit/tradebot/internal/service"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// AdminDependencies bundles collaborators for administrative endpoints.
type AdminDependencies struct {
	Reputation *service.ReputationService
	Sessions   *service.SessionRegistry
	Scanner    *service.ExpiryScanner
	Metrics    *observability.Metrics
}

// AdminHandler exposes moderation and operational endpoints.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler constructs handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// AddVouch records a manual vouch attributed to the calling administrator.
func (h *AdminHandler) AddVouch(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("missing principal")
	}
	var req dto.ManualVouchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"error": err.Error()})
	}
	rec, err := h.deps.Reputation.AddManualVouch(c.UserContext(), principal.SubjectID, req.UserID, req.Stars, req.Comment)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewReputationResponse(*rec)})
}

// Tickets lists live ticket sessions.
func (h *AdminHandler) Tickets(c *fiber.Ctx) error {
	tickets := h.deps.Sessions.Tickets()
	resp := make([]dto.TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, dto.NewTicketResponse(t))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ArchiveTicket forces the archive flow, retrying a previously failed one.
func (h *AdminHandler) ArchiveTicket(c *fiber.Ctx) error {
	session, err := h.deps.Sessions.Get(c.Params("channel"))
	if err != nil {
		return err
	}
	if err := session.Archive(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(session.Snapshot())})
}

// RunExpiry triggers one expiry sweep outside the schedule.
func (h *AdminHandler) RunExpiry(c *fiber.Ctx) error {
	report, err := h.deps.Scanner.RunOnce(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Metrics returns in-process counters.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.deps.Metrics.Snapshot()})
}
