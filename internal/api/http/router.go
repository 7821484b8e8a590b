package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-channels/internal/api/http/handlers"
	"github.com/spec-kit/ticket-channels/internal/auth"
)

// NewApp builds the fiber app. Immutable is required: request values such as
// the actor id and guild param end up stored in tickets and must not alias
// fiber's reused buffers.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:   name,
		Immutable: true,
	})
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Config  *handlers.ConfigHandler
	Ops     *handlers.OpsHandler
}

// RegisterRoutes wires HTTP routes. Capability checks are attached per
// route: a fiber group middleware would also run for every sibling route
// sharing the prefix.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Use(auth.ActorMiddleware())

	requireActor := auth.RequireActor()
	requireTeam := auth.RequireTeam()
	requireAdmin := auth.RequireAdmin()

	guild := app.Group("/guilds/:guild")
	guild.Post("/tickets", requireActor, cfg.Tickets.CreateTicket)
	guild.Get("/tickets", requireTeam, cfg.Tickets.ListTickets)
	guild.Get("/tickets/:id", requireActor, cfg.Tickets.GetTicket)
	guild.Get("/tickets/:id/history", requireTeam, cfg.Tickets.ListHistory)
	guild.Post("/tickets/:id/actions/:action", requireActor, cfg.Tickets.Transition)

	guild.Get("/config", requireAdmin, cfg.Config.GetConfig)
	guild.Put("/config", requireAdmin, cfg.Config.PutConfig)
	guild.Post("/assignment/preview", requireAdmin, cfg.Config.PreviewAssignee)

	app.Post("/channels/:channel/rename", requireAdmin, cfg.Ops.ScheduleRename)
	app.Get("/metrics", requireAdmin, cfg.Ops.Metrics)
}
