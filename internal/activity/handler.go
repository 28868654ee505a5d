package activity

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/events"
	"github.com/congo-pay/walletcore/internal/middleware"
)

type eventResponse struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	CardRef    string          `json:"card_ref"`
	Reference  string          `json:"reference"`
	Amount     string          `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	Status     string          `json:"status,omitempty"`
	Narrative  string          `json:"narrative,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Processed  bool            `json:"processed"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func toResponse(evt events.CardEvent) eventResponse {
	return eventResponse{
		ID:         evt.ID,
		Kind:       string(evt.Kind),
		CardRef:    evt.CardRef,
		Reference:  evt.Reference,
		Amount:     evt.Amount.StringFixed(2),
		Currency:   evt.Currency,
		Status:     evt.Status,
		Narrative:  evt.Narrative,
		Reason:     evt.Reason,
		Processed:  evt.Processed,
		ReceivedAt: evt.ReceivedAt,
		Payload:    evt.RawPayload,
	}
}

// Handler lists the owner's card activity.
type Handler struct {
	recorder *Recorder
}

func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// List returns card events newest first. ?payload=true includes the raw processor payload.
func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.recorder.List(c.UserContext(), middleware.OwnerID(c), c.QueryInt("limit", 50))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	withPayload := c.QueryBool("payload", false)
	out := make([]eventResponse, 0, len(list))
	for _, evt := range list {
		resp := toResponse(evt)
		if !withPayload {
			resp.Payload = nil
		}
		out = append(out, resp)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"events": out})
}
