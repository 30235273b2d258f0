package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"ticklake/internal/config"
)

// Open returns the notifier selected by cfg.Backend.
func Open(ctx context.Context, cfg config.NotifyConfig) (Notifier, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLogNotifier(slog.Default()), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connecting to redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisNotifier(client, cfg.TopicPrefix), nil
	case "kafka":
		return NewKafkaNotifier(cfg.KafkaBrokers, cfg.TopicPrefix), nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}
