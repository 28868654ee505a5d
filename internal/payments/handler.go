package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/validation"
	"github.com/congo-pay/walletcore/internal/wallet"
)

type operation func(ctx context.Context, req Request) ([]ledger.Transaction, error)

// Handler exposes payment endpoints.
type Handler struct {
	service   *Service
	validator *validation.Validator
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service, v *validation.Validator) *Handler {
	if v == nil {
		v = validation.New()
	}
	return &Handler{service: service, validator: v}
}

// Send transfers to another owner.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	in, err := req.toRequest(middleware.OwnerID(c))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, h.service.Send, in)
}

func (h *Handler) Receive(c *fiber.Ctx) error     { return h.movement(c, h.service.Receive) }
func (h *Handler) AddMoney(c *fiber.Ctx) error    { return h.movement(c, h.service.AddMoney) }
func (h *Handler) CashOut(c *fiber.Ctx) error     { return h.movement(c, h.service.CashOut) }
func (h *Handler) PayBill(c *fiber.Ctx) error     { return h.movement(c, h.service.PayBill) }
func (h *Handler) Recharge(c *fiber.Ctx) error    { return h.movement(c, h.service.Recharge) }
func (h *Handler) PayMerchant(c *fiber.Ctx) error { return h.movement(c, h.service.PayMerchant) }
func (h *Handler) Remittance(c *fiber.Ctx) error  { return h.movement(c, h.service.RemittanceCredit) }
func (h *Handler) Reward(c *fiber.Ctx) error      { return h.movement(c, h.service.CreditReward) }

func (h *Handler) movement(c *fiber.Ctx, op operation) error {
	var req movementRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	in, err := req.toRequest(middleware.OwnerID(c))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, op, in)
}

func (h *Handler) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return h.validator.Struct(dst)
}

func (h *Handler) respond(c *fiber.Ctx, op operation, in Request) error {
	txs, err := op(c.UserContext(), in)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return c.Status(http.StatusOK).JSON(fiber.Map{
				"duplicate":    true,
				"transactions": wallet.ToTransactionResponses(txs),
			})
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusUnprocessableEntity, "insufficient balance")
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ErrSelfTransfer):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "payment failed")
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"transactions": wallet.ToTransactionResponses(txs)})
}
