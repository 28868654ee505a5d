package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/webhook"
)

// RegisterWebhookRoutes wires the processor callback. It authenticates by signature, not JWT.
func RegisterWebhookRoutes(app *fiber.App, h *webhook.Handler) {
	app.Post("/webhooks/card-events", h.CardEvents)
}
