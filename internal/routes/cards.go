package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/cards"
)

// RegisterCardRoutes wires card issuance and lifecycle endpoints.
func RegisterCardRoutes(r fiber.Router, h *cards.Handler) {
	r.Post("/", h.Issue)
	r.Get("/", h.List)
	r.Get("/:cardId", h.Get)
	r.Post("/:cardId/activate", h.Activate)
	r.Post("/:cardId/freeze", h.Freeze)
	r.Post("/:cardId/unfreeze", h.Unfreeze)
	r.Post("/:cardId/block", h.Block)
	r.Put("/:cardId/limit", h.SetLimit)
	r.Get("/:cardId/detail", h.Detail)
	r.Get("/:cardId/history", h.History)
}
