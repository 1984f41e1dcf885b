package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
)

const consumerGroup = "recommender-invalidators"

// InteractionEvent is the payload the marketplace publishes whenever a
// user views, favorites, shares or contacts a seller about a vehicle.
type InteractionEvent struct {
	UserID          int       `json:"user_id"`
	VehicleID       int       `json:"vehicle_id"`
	InteractionType string    `json:"interaction_type"`
	Timestamp       time.Time `json:"timestamp"`
}

// InteractionConsumer drains the user-interaction topic and drops the
// affected user's cached recommendations so the next request reflects
// the new activity.
type InteractionConsumer struct {
	reader *kafka.Reader
	cache  *cache.Cache
	logger *logrus.Logger
}

func NewInteractionConsumer(cfg *config.Config, c *cache.Cache, logger *logrus.Logger) *InteractionConsumer {
	return &InteractionConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topics.UserInteractions,
			GroupID:        consumerGroup,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		cache:  c,
		logger: logger,
	}
}

// Run consumes until the context is cancelled.
func (c *InteractionConsumer) Run(ctx context.Context) error {
	c.logger.WithField("topic", c.reader.Config().Topic).Info("Interaction consumer started")

	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).Error("Failed to read interaction event")
			continue
		}

		c.handle(ctx, message.Value)
	}
}

// handle processes one raw event. Malformed events are logged and
// skipped; invalidation failures resolve on the user's next event at
// worst.
func (c *InteractionConsumer) handle(ctx context.Context, raw []byte) {
	var event InteractionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		c.logger.WithError(err).Warn("Skipping malformed interaction event")
		return
	}
	if event.UserID <= 0 {
		c.logger.Warn("Skipping interaction event without user id")
		return
	}

	if err := c.cache.InvalidateUser(ctx, event.UserID); err != nil {
		c.logger.WithError(err).WithField("user_id", event.UserID).Error("Failed to invalidate user caches")
		return
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":          event.UserID,
		"vehicle_id":       event.VehicleID,
		"interaction_type": event.InteractionType,
	}).Debug("Invalidated caches for interaction event")
}

func (c *InteractionConsumer) Close() error {
	return c.reader.Close()
}

// Stats exposes reader counters for the metrics endpoint.
func (c *InteractionConsumer) Stats() map[string]interface{} {
	stats := c.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"errors":          stats.Errors,
	}
}
