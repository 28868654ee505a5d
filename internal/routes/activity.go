package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/activity"
	"github.com/congo-pay/walletcore/internal/notification"
)

func RegisterNotificationRoutes(r fiber.Router, h *notification.Handler) {
	r.Get("/notifications", h.List)
	r.Post("/notifications/:id/read", h.MarkRead)
}

func RegisterActivityRoutes(r fiber.Router, h *activity.Handler) {
	r.Get("/activity", h.List)
}
