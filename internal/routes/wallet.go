package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/wallet"
)

func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallet", h.Create)
	r.Get("/wallet", h.Get)
	r.Get("/wallet/transactions", h.History)
}
