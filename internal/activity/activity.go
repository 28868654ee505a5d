package activity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/congo-pay/walletcore/internal/cards"
	"github.com/congo-pay/walletcore/internal/events"
	"github.com/congo-pay/walletcore/internal/notification"
)

// Log is the append-only card event log. Record inserts only when the dedupe key is new and
// never updates an existing row.
type Log interface {
	Record(ctx context.Context, evt events.CardEvent) (inserted bool, err error)
	List(ctx context.Context, ownerID string, limit int) ([]events.CardEvent, error)
}

// Notifier receives the notification derived from a newly logged event.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// Recorder resolves the event owner, logs the event and notifies on first insertion.
type Recorder struct {
	log      Log
	cards    cards.Store
	notifier Notifier
	logger   *slog.Logger
}

func NewRecorder(log Log, cardStore cards.Store, notifier Notifier, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{log: log, cards: cardStore, notifier: notifier, logger: logger}
}

// Record stores evt. The returned event carries the resolved owner; inserted is false for a
// redelivery.
func (r *Recorder) Record(ctx context.Context, evt events.CardEvent) (events.CardEvent, bool, error) {
	if evt.OwnerID == "" && evt.CardRef != "" && r.cards != nil {
		card, err := r.cards.GetByProcessorID(ctx, evt.CardRef)
		switch {
		case err == nil:
			evt.OwnerID = card.OwnerID
		case errors.Is(err, cards.ErrCardNotFound):
			r.logger.Info("card event for unknown card", slog.String("card_ref", evt.CardRef), slog.String("kind", string(evt.Kind)))
		default:
			r.logger.Warn("card owner lookup failed", slog.String("card_ref", evt.CardRef), slog.Any("error", err))
		}
	}

	inserted, err := r.log.Record(ctx, evt)
	if err != nil {
		r.logger.Error("card event not recorded",
			slog.String("card_ref", evt.CardRef),
			slog.String("reference", evt.Reference),
			slog.Any("error", err))
		return evt, false, err
	}
	if !inserted {
		r.logger.Info("duplicate card event ignored",
			slog.String("card_ref", evt.CardRef),
			slog.String("reference", evt.Reference))
		return evt, false, nil
	}

	if n, ok := notification.FromEvent(evt); ok && r.notifier != nil {
		if err := r.notifier.Notify(ctx, n); err != nil {
			r.logger.Warn("card event notification failed", slog.String("event_id", evt.ID), slog.Any("error", err))
		}
	}
	return evt, true, nil
}

// List returns an owner's card events, newest first.
func (r *Recorder) List(ctx context.Context, ownerID string, limit int) ([]events.CardEvent, error) {
	return r.log.List(ctx, ownerID, limit)
}
