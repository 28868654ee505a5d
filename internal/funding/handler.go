package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/cards"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/processor"
	"github.com/congo-pay/walletcore/internal/reconcile"
	"github.com/congo-pay/walletcore/internal/validation"
	"github.com/congo-pay/walletcore/internal/wallet"
)

type movementRequest struct {
	Amount    string `json:"amount" validate:"required,money"`
	Reference string `json:"reference" validate:"omitempty,max=128"`
}

// Handler exposes HTTP endpoints for card funding flows.
type Handler struct {
	service   *Service
	validator *validation.Validator
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service, v *validation.Validator) *Handler {
	if v == nil {
		v = validation.New()
	}
	return &Handler{service: service, validator: v}
}

// Fund loads the card from the wallet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	in, err := h.input(c)
	if err != nil {
		return err
	}
	tx, err := h.service.FundCard(c.UserContext(), in)
	return respond(c, tx, err)
}

// Withdraw moves card funds back to the wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	in, err := h.input(c)
	if err != nil {
		return err
	}
	tx, err := h.service.WithdrawFromCard(c.UserContext(), in)
	return respond(c, tx, err)
}

// Refresh settles a pending withdrawal from the processor's current status.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	tx, err := h.service.RefreshWithdrawal(c.UserContext(), middleware.OwnerID(c), c.Params("cardId"), c.Params("txId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(wallet.ToTransactionResponse(tx))
}

func (h *Handler) input(c *fiber.Ctx) (MovementInput, error) {
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return MovementInput{}, fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return MovementInput{}, err
	}
	amount, err := validation.ParseMoney(req.Amount)
	if err != nil {
		return MovementInput{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return MovementInput{
		OwnerID:   middleware.OwnerID(c),
		CardID:    c.Params("cardId"),
		Amount:    amount,
		Reference: req.Reference,
	}, nil
}

func respond(c *fiber.Ctx, tx ledger.Transaction, err error) error {
	var rerr *reconcile.ReconciliationRequiredError
	switch {
	case err == nil:
		status := http.StatusCreated
		if tx.Status == ledger.StatusPending {
			status = http.StatusAccepted
		}
		return c.Status(status).JSON(wallet.ToTransactionResponse(tx))
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return c.Status(http.StatusOK).JSON(wallet.ToTransactionResponse(tx))
	case errors.As(err, &rerr):
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"status":    "reconciliation_required",
			"case_id":   rerr.Case.ID,
			"reference": rerr.Case.Posting.Reference,
			"escalated": rerr.Escalated,
		})
	default:
		return mapError(err)
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, cards.ErrCardNotFound), errors.Is(err, cards.ErrNotCardOwner):
		return fiber.NewError(http.StatusNotFound, "card not found")
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return fiber.NewError(http.StatusNotFound, "transaction not found")
	case errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, cards.ErrCardFrozen), errors.Is(err, cards.ErrCardBlocked), errors.Is(err, cards.ErrCardInactive):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrMovementInProgress):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient balance")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, processor.ErrIntegrationFailure):
		return fiber.NewError(http.StatusBadGateway, "card processor unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, "card operation failed")
	}
}
