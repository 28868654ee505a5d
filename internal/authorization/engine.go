package authorization

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/walletcore/internal/cards"
	"github.com/congo-pay/walletcore/internal/events"
	"github.com/congo-pay/walletcore/internal/metrics"
)

// DefaultDeadline leaves headroom inside the processor's synchronous request window.
const DefaultDeadline = 2500 * time.Millisecond

const (
	ReasonTimedOut        = "authorization timed out"
	ReasonUnavailable     = "authorization unavailable"
	ReasonNotAnAuthorizer = "not an authorization request"
)

// Verdict is the answer returned to the processor.
type Verdict struct {
	Approve  bool
	Reason   string
	OwnerID  string
	Replayed bool
}

// WireVerdict is the JSON shape the processor expects.
type WireVerdict struct {
	Approve string `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

// Wire renders the verdict for the processor.
func (v Verdict) Wire() WireVerdict {
	if v.Approve {
		return WireVerdict{Approve: "YES"}
	}
	return WireVerdict{Approve: "NO", Reason: v.Reason}
}

// Engine produces synchronous approve/decline verdicts. Every failure path declines.
type Engine struct {
	cards    cards.Store
	deadline time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine builds an engine; a non-positive deadline uses DefaultDeadline.
func NewEngine(store cards.Store, deadline time.Duration, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cards: store, deadline: deadline, metrics: m, logger: logger}
}

// Decide evaluates an authorization request within the engine deadline.
func (e *Engine) Decide(ctx context.Context, evt events.CardEvent) Verdict {
	started := time.Now()
	v := e.decide(ctx, evt)
	e.metrics.ObserveAuthorization(v.Approve, v.Reason, time.Since(started))

	attrs := []any{
		slog.String("card_ref", evt.CardRef),
		slog.String("reference", evt.Reference),
		slog.String("amount", evt.Amount.String()),
		slog.Bool("replayed", v.Replayed),
	}
	if v.Approve {
		e.logger.Info("authorization approved", attrs...)
	} else {
		e.logger.Info("authorization declined", append(attrs, slog.String("reason", v.Reason))...)
	}
	return v
}

func (e *Engine) decide(ctx context.Context, evt events.CardEvent) Verdict {
	if !evt.IsAuthorization() {
		return Verdict{Reason: ReasonNotAnAuthorizer}
	}
	if evt.CardRef == "" {
		return Verdict{Reason: cards.ErrCardNotRecognized.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	d, err := e.cards.Authorize(ctx, cards.AuthorizationRequest{
		CardRef:   evt.CardRef,
		Reference: evt.Reference,
		Amount:    evt.Amount,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("authorization deadline exceeded",
				slog.String("card_ref", evt.CardRef),
				slog.Duration("deadline", e.deadline))
			return Verdict{Reason: ReasonTimedOut}
		}
		e.logger.Error("authorization store failure",
			slog.String("card_ref", evt.CardRef),
			slog.Any("error", err))
		return Verdict{Reason: ReasonUnavailable}
	}
	return Verdict{Approve: d.Approved, Reason: d.Reason, OwnerID: d.OwnerID, Replayed: d.Replayed}
}
