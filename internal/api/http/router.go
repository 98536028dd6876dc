package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Changelog      *handlers.ChangelogHandler
	Watchers       *handlers.WatchersHandler
	Admin          *handlers.AdminHandler
	// Auth issues development tokens; nil leaves the route unmounted.
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Auth != nil {
		app.Post("/auth/dev-token", cfg.Auth.IssueToken)
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/by-key/:key", cfg.Tickets.GetTicketByKey)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/transitions", cfg.Tickets.AvailableTransitions)
	tickets.Post("/:id/transitions/:name", cfg.Tickets.ApplyTransition)
	tickets.Get("/:id/changelog", cfg.Changelog.ListEntries)
	tickets.Get("/:id/watchers", cfg.Watchers.ListWatchers)
	tickets.Post("/:id/watchers", cfg.Watchers.AddWatcher)
	tickets.Delete("/:id/watchers/:watcherId", cfg.Watchers.RemoveWatcher)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Post("/sweeps", cfg.Admin.RunSweep)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
