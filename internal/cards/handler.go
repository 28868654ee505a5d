package cards

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/processor"
	"github.com/congo-pay/walletcore/internal/validation"
)

type issueRequest struct {
	FirstName     string `json:"first_name" validate:"required,max=64"`
	LastName      string `json:"last_name" validate:"required,max=64"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,e164"`
	Currency      string `json:"currency" validate:"required,len=3,alpha"`
	SpendingLimit string `json:"spending_limit" validate:"required,money"`
}

type limitRequest struct {
	SpendingLimit string `json:"spending_limit" validate:"required,money"`
}

type cardResponse struct {
	ID              string    `json:"id"`
	ProcessorCardID string    `json:"processor_card_id"`
	Status          string    `json:"status"`
	SpendingLimit   string    `json:"spending_limit"`
	SpentToday      string    `json:"spent_today"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toResponse(c Card) cardResponse {
	return cardResponse{
		ID:              c.ID,
		ProcessorCardID: c.ProcessorCardID,
		Status:          string(c.Status),
		SpendingLimit:   c.SpendingLimit.StringFixed(2),
		SpentToday:      c.SpentToday(time.Now()).StringFixed(2),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// Handler exposes card lifecycle endpoints.
type Handler struct {
	service   *Service
	validator *validation.Validator
}

func NewHandler(service *Service, v *validation.Validator) *Handler {
	if v == nil {
		v = validation.New()
	}
	return &Handler{service: service, validator: v}
}

// Issue opens a new card for the owner.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return err
	}
	limit, err := validation.ParseMoney(req.SpendingLimit)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	card, err := h.service.Issue(c.UserContext(), IssueInput{
		OwnerID: middleware.OwnerID(c),
		Customer: processor.Customer{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
		},
		Currency:      strings.ToUpper(req.Currency),
		SpendingLimit: limit,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(card))
}

func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), middleware.OwnerID(c))
	if err != nil {
		return mapError(err)
	}
	out := make([]cardResponse, 0, len(list))
	for _, card := range list {
		out = append(out, toResponse(card))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"cards": out})
}

func (h *Handler) Get(c *fiber.Ctx) error {
	card, err := h.service.Get(c.UserContext(), middleware.OwnerID(c), c.Params("cardId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}

func (h *Handler) Activate(c *fiber.Ctx) error { return h.transition(c, h.service.Activate) }
func (h *Handler) Freeze(c *fiber.Ctx) error   { return h.transition(c, h.service.Freeze) }
func (h *Handler) Unfreeze(c *fiber.Ctx) error { return h.transition(c, h.service.Unfreeze) }
func (h *Handler) Block(c *fiber.Ctx) error    { return h.transition(c, h.service.Block) }

// SetLimit replaces the daily spending limit.
func (h *Handler) SetLimit(c *fiber.Ctx) error {
	var req limitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return err
	}
	limit, err := validation.ParseMoney(req.SpendingLimit)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	card, err := h.service.SetSpendingLimit(c.UserContext(), middleware.OwnerID(c), c.Params("cardId"), limit)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}

// Detail proxies the processor's card detail.
func (h *Handler) Detail(c *fiber.Ctx) error {
	raw, err := h.service.Detail(c.UserContext(), middleware.OwnerID(c), c.Params("cardId"))
	if err != nil {
		return mapError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(http.StatusOK).Send(raw)
}

// History proxies the processor's card transaction list.
func (h *Handler) History(c *fiber.Ctx) error {
	raw, err := h.service.History(c.UserContext(), middleware.OwnerID(c), c.Params("cardId"))
	if err != nil {
		return mapError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(http.StatusOK).Send(raw)
}

func (h *Handler) transition(c *fiber.Ctx, op func(context.Context, string, string) (Card, error)) error {
	card, err := op(c.UserContext(), middleware.OwnerID(c), c.Params("cardId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrCardNotFound), errors.Is(err, ErrNotCardOwner):
		return fiber.NewError(http.StatusNotFound, "card not found")
	case errors.Is(err, ErrIllegalTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, processor.ErrIntegrationFailure):
		return fiber.NewError(http.StatusBadGateway, "card processor unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, "card operation failed")
	}
}
