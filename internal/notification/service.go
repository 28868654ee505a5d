package notification

import (
	"context"
	"log/slog"
)

// Service persists notifications and then publishes them. Publish failures are logged only:
// the stored row is the source of truth.
type Service struct {
	store      Store
	publishers []Publisher
	logger     *slog.Logger
}

// NewService wires the notification service.
func NewService(store Store, logger *slog.Logger, publishers ...Publisher) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, publishers: publishers, logger: logger}
}

// Notify stores n and fans it out.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := s.store.Insert(ctx, n); err != nil {
		s.logger.Error("notification not stored",
			slog.String("owner_id", n.OwnerID),
			slog.String("title", n.Title),
			slog.Any("error", err))
		return err
	}
	for _, p := range s.publishers {
		if err := p.Publish(ctx, n); err != nil {
			s.logger.Warn("notification publish failed",
				slog.String("notification_id", n.ID),
				slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]Notification, error) {
	return s.store.List(ctx, ownerID, limit)
}

func (s *Service) MarkRead(ctx context.Context, ownerID, id string) error {
	return s.store.MarkRead(ctx, ownerID, id)
}
