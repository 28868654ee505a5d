package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/payments"
)

// RegisterPaymentRoutes wires the wallet money movement endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/send", h.Send)
	r.Post("/receive", h.Receive)
	r.Post("/add-money", h.AddMoney)
	r.Post("/cash-out", h.CashOut)
	r.Post("/bill", h.PayBill)
	r.Post("/recharge", h.Recharge)
	r.Post("/merchant", h.PayMerchant)
	r.Post("/remittance", h.Remittance)
	r.Post("/reward", h.Reward)
}
