package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Notifier = (*RedisNotifier)(nil)

// RedisNotifier publishes to Redis pub/sub channels named <prefix>.<channel>.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier wraps client.
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) channel(name string) string {
	if n.prefix == "" {
		return name
	}
	return n.prefix + "." + name
}

func (n *RedisNotifier) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := n.client.Publish(ctx, n.channel(channel), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
