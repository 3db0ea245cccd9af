package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tradebot/internal/api/http/handlers"
	"github.com/spec-kit/tradebot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Gateway        *handlers.GatewayHandler
	Reputation     *handlers.ReputationHandler
	Listings       *handlers.ListingsHandler
	Admin          *handlers.AdminHandler
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
	GatewayToken   string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/admin/login", cfg.Auth.Login)

	rep := app.Group("/reputation")
	rep.Get("/top", cfg.Reputation.Top)
	rep.Get("/:user", cfg.Reputation.Get)

	gw := app.Group("/gateway", auth.RequireGatewayToken(cfg.GatewayToken))
	gw.Post("/tickets", cfg.Gateway.OpenTicket)
	gw.Post("/tickets/:channel/actions", cfg.Gateway.Action)
	gw.Post("/tickets/:channel/ratings", cfg.Gateway.Rating)
	gw.Post("/tickets/:channel/listing-decision", cfg.Gateway.ListingDecision)
	gw.Post("/listings", cfg.Gateway.CreateListing)
	gw.Post("/listings/:id/bump", cfg.Gateway.BumpListing)
	gw.Post("/listings/:id/touch", cfg.Gateway.TouchListing)
	gw.Put("/listings/:id/payload", cfg.Gateway.UpdateListing)
	gw.Post("/listings/:id/deactivate", cfg.Gateway.DeactivateListing)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Post("/vouches", cfg.Admin.AddVouch)
	admin.Get("/tickets", cfg.Admin.Tickets)
	admin.Post("/tickets/:channel/archive", cfg.Admin.ArchiveTicket)
	admin.Post("/expiry/run", cfg.Admin.RunExpiry)
	admin.Get("/metrics", cfg.Admin.Metrics)

	listings := admin.Group("/listings")
	listings.Post("/", cfg.Listings.Create)
	listings.Get("/", cfg.Listings.List)
	listings.Get("/:id", cfg.Listings.Get)
	listings.Post("/:id/bump", cfg.Listings.Bump)
	listings.Post("/:id/touch", cfg.Listings.Touch)
	listings.Put("/:id/payload", cfg.Listings.UpdatePayload)
	listings.Delete("/:id", cfg.Listings.Deactivate)
}
