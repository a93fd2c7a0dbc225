// handlers/routes.go
package handlers

import (
	"button-game-system/middleware"
	"button-game-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService, paymentService *services.PaymentService) {
	app.Get("/health", gameService.Health)
	app.Get("/.well-known/x402.json", paymentService.WellKnown)

	api := app.Group("/api")

	// 🔓 Public game routes
	api.Get("/state", gameService.GetState)
	api.Post("/press", gameService.PressFree)
	api.Get("/leaderboard", gameService.Leaderboard)
	api.Get("/history", gameService.History)
	api.Get("/agent", gameService.AgentSummary)

	// 💰 Paid press (x402 flow)
	api.Get("/press-sbtc", paymentService.Discovery)
	api.Post("/press-sbtc", paymentService.PressPaid)

	// 🔐 Operator route — forces settlement, then starts the next round
	api.Post("/reset", middleware.OperatorAuthMiddleware(), gameService.Reset)
}
