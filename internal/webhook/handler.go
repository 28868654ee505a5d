package webhook

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/activity"
	"github.com/congo-pay/walletcore/internal/authorization"
	"github.com/congo-pay/walletcore/internal/events"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/signature"
)

// DefaultSignatureHeader carries the hex HMAC-SHA256 of the raw body.
const DefaultSignatureHeader = "X-Processor-Signature"

// Handler is the ingress for processor card events.
type Handler struct {
	verifier *signature.Verifier
	header   string
	engine   *authorization.Engine
	recorder *activity.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler wires the webhook. An empty header uses DefaultSignatureHeader.
func NewHandler(verifier *signature.Verifier, header string, engine *authorization.Engine, recorder *activity.Recorder, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if header == "" {
		header = DefaultSignatureHeader
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{verifier: verifier, header: header, engine: engine, recorder: recorder, metrics: m, logger: logger}
}

// CardEvents verifies, classifies and records one processor event. Authorization requests are
// answered with an approve/decline verdict; everything else is acknowledged.
func (h *Handler) CardEvents(c *fiber.Ctx) error {
	body := c.Body()
	if err := h.verifier.Check(body, c.Get(h.header)); err != nil {
		h.metrics.ObserveWebhookRejection("signature")
		h.logger.Warn("webhook signature rejected",
			slog.String("request_id", middleware.RequestIDFrom(c)),
			slog.String("remote_ip", c.IP()))
		return fiber.NewError(http.StatusUnauthorized, signature.ErrSignatureInvalid.Error())
	}

	ctx := c.UserContext()
	evt, err := events.Decode(body)
	switch {
	case errors.Is(err, events.ErrMalformedPayload):
		h.metrics.ObserveWebhookRejection("malformed")
		h.logger.Warn("malformed webhook payload", slog.String("request_id", middleware.RequestIDFrom(c)), slog.Any("error", err))
		if _, _, rerr := h.recorder.Record(ctx, evt); rerr != nil {
			return fiber.NewError(http.StatusInternalServerError, "event not recorded")
		}
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	case errors.Is(err, events.ErrClassificationUnknown):
		h.logger.Info("unclassified card event", slog.String("reference", evt.Reference))
	}
	h.metrics.ObserveWebhookEvent(string(evt.Kind))

	if evt.IsAuthorization() {
		verdict := h.engine.Decide(ctx, evt)
		evt.OwnerID = verdict.OwnerID
		evt.Processed = true
		evt.Reason = verdict.Reason
		evt.Status = "declined"
		if verdict.Approve {
			evt.Status = "approved"
		}
		// a committed decision is answered even when logging fails
		if _, _, err := h.recorder.Record(ctx, evt); err != nil {
			h.logger.Error("authorization answered but not logged",
				slog.String("card_ref", evt.CardRef),
				slog.String("reference", evt.Reference),
				slog.Any("error", err))
		}
		return c.Status(http.StatusOK).JSON(verdict.Wire())
	}

	if _, _, err := h.recorder.Record(ctx, evt); err != nil {
		return fiber.NewError(http.StatusInternalServerError, "event not recorded")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"received": true})
}
