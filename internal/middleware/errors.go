package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/validation"
)

// ErrorHandler renders handler errors as {"error": ...} JSON. Validation failures also carry
// per-field details. Unexpected errors are reported without their internal message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		fe   *fiber.Error
		verr *validation.Error
	)
	switch {
	case errors.As(err, &verr):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": verr.Details})
	case errors.As(err, &fe):
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	default:
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
