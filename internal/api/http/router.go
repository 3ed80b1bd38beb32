package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-service/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Approvals      *handlers.ApprovalsHandler
	Sync           *handlers.SyncHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Get("/tickets/:id", cfg.Tickets.GetTicket)
	protected.Post("/tickets/:id/actions/:action", cfg.Tickets.PerformAction)

	protected.Get("/approvals/check", cfg.Approvals.Check)
	protected.Get("/approvals/persons", cfg.Approvals.AuthorizedPersons)
	protected.Post("/approval-rules", cfg.Approvals.CreateRule)
	protected.Get("/approval-rules", cfg.Approvals.ListRules)
	protected.Delete("/approval-rules/:id", cfg.Approvals.DeactivateRule)

	protected.Post("/tickets/:id/resync", cfg.Sync.Resync)
	protected.Get("/tickets/:id/external-status", cfg.Sync.ExternalStatus)
	protected.Get("/tickets/:id/integration-log", cfg.Sync.IntegrationLog)
	protected.Get("/integration/stats", cfg.Sync.Statistics)
}
