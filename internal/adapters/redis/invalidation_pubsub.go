package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
	"github.com/traveldatawifi/zoho-token-service/pkg/storekeys"
)

// InvalidationPubSubAdapter implements both InvalidationPublisher and
// InvalidationSubscriber using Redis pub/sub, so a cache clear on one
// instance reaches every peer.
type InvalidationPubSubAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
	sub         *redis.PubSub // Holds the active subscription
}

// NewInvalidationPubSubAdapter creates a new adapter for Redis pub/sub.
func NewInvalidationPubSubAdapter(redisClient *redis.Client, logger domain.Logger) *InvalidationPubSubAdapter {
	return &InvalidationPubSubAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishInvalidation broadcasts a cache invalidation message.
func (a *InvalidationPubSubAdapter) PublishInvalidation(ctx context.Context, msg domain.InvalidationMessage) error {
	channel := storekeys.InvalidationChannel()
	payloadBytes, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal invalidation message for publishing", "channel", channel, "error", err.Error())
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err = a.redisClient.Publish(ctx, channel, string(payloadBytes)).Err(); err != nil {
		a.logger.Error(ctx, "Failed to publish invalidation message to Redis", "channel", channel, "error", err.Error())
		return fmt.Errorf("failed to publish to Redis channel '%s': %w", channel, err)
	}
	a.logger.Info(ctx, "Published cache invalidation", "channel", channel, "cleared_service", msg.Service)
	return nil
}

// SubscribeInvalidations subscribes to the invalidation channel and invokes
// the handler for each message. The message loop runs in its own goroutine;
// this function returns after the subscription is confirmed.
func (a *InvalidationPubSubAdapter) SubscribeInvalidations(ctx context.Context, handler domain.InvalidationHandler) error {
	if a.sub != nil {
		return fmt.Errorf("already subscribed or subscription active on this adapter instance")
	}

	channel := storekeys.InvalidationChannel()
	a.sub = a.redisClient.Subscribe(ctx, channel)

	// Receive() confirms the subscription before the message loop starts, so a
	// broken connection surfaces here rather than as silent message loss.
	if _, err := a.sub.Receive(ctx); err != nil {
		a.logger.Error(ctx, "Failed to confirm Redis subscription", "channel", channel, "error", err.Error())
		_ = a.sub.Close()
		a.sub = nil
		return fmt.Errorf("failed to subscribe to channel '%s': %w", channel, err)
	}
	a.logger.Info(ctx, "Subscribed to cache invalidation channel", "channel", channel)

	ch := a.sub.Channel()

	go func() {
		for msg := range ch {
			var inv domain.InvalidationMessage
			if errUnmarshal := json.Unmarshal([]byte(msg.Payload), &inv); errUnmarshal != nil {
				a.logger.Error(ctx, "Failed to unmarshal invalidation message from pub/sub",
					"channel", msg.Channel,
					"payload", msg.Payload,
					"error", errUnmarshal.Error(),
				)
				continue // Skip malformed messages
			}

			if errHandler := handler(msg.Channel, inv); errHandler != nil {
				a.logger.Error(ctx, "Error in invalidation handler",
					"channel", msg.Channel,
					"cleared_service", inv.Service,
					"error", errHandler.Error(),
				)
			}
		}
		a.logger.Info(ctx, "Invalidation subscription goroutine ended", "channel", channel)
	}()

	return nil
}

// Close closes the Redis pub/sub subscription.
func (a *InvalidationPubSubAdapter) Close() error {
	if a.sub == nil {
		return nil
	}
	err := a.sub.Close()
	a.sub = nil
	if err != nil {
		a.logger.Error(context.Background(), "Error closing Redis pub/sub subscription", "error", err.Error())
		return fmt.Errorf("error closing Redis pub/sub: %w", err)
	}
	a.logger.Info(context.Background(), "Invalidation subscription closed.")
	return nil
}
