package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/funding"
)

// RegisterFundingRoutes wires wallet-to-card transfers under the card group.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/:cardId/fund", h.Fund)
	r.Post("/:cardId/withdraw", h.Withdraw)
	r.Post("/:cardId/withdrawals/:txId/refresh", h.Refresh)
}
