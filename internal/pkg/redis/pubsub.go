package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publish returns the number of subscribers that received message
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	n, err := c.master.Publish(ctx, channel, message).Result()
	if err != nil {
		c.logger.Error("redis publish failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
		return 0, err
	}

	c.logger.Debug("redis message published",
		zap.String("channel", channel),
		zap.Int64("receivers", n),
	)
	return n, nil
}

func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	pubsub := c.master.Subscribe(ctx, channels...)
	c.logger.Info("redis subscribed to channels", zap.Strings("channels", channels))
	return pubsub
}
