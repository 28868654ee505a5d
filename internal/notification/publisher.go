package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers a stored notification to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// LogPublisher writes notifications to the structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the notification to the logger.
func (p *LogPublisher) Publish(_ context.Context, n Notification) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("notification",
		slog.String("notification_id", n.ID),
		slog.String("owner_id", n.OwnerID),
		slog.String("title", n.Title))
	return nil
}

// ChannelPrefix prefixes the per-owner Redis pub/sub channel.
const ChannelPrefix = "notifications:"

// Channel returns the pub/sub channel for an owner.
func Channel(ownerID string) string {
	return ChannelPrefix + ownerID
}

// RedisPublisher fans notifications out over Redis pub/sub, one channel per owner.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(n.OwnerID), payload).Err()
}
