package routes

import (
	"github.com/gofiber/fiber/v2"

	"tacotip-backend/controllers"
)

// Register wires all HTTP routes.
func Register(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Slack surface
	api.Post("/slack/events", controllers.HandleSlackEvents)
	api.Post("/slack/interactivity", controllers.HandleSlackInteractivity)
	api.Get("/slack/install", controllers.HandleSlackInstall)
	api.Get("/slack/oauth", controllers.HandleSlackOAuth)

	// Relay webhooks
	api.Post("/engine/mined", controllers.HandleEngineMined)
	api.Post("/engine/errored", controllers.HandleEngineErrored)
}
