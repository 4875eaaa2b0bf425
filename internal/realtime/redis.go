package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher broadcasts through Redis pubsub so every instance can reach its own clients.
type RedisPublisher struct {
	redis redis.UniversalClient
}

func NewRedisPublisher(rc redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{redis: rc}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.redis.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish %s: %w", channel, err)
	}

	return nil
}

type RelayConfig struct {
	Redis  redis.UniversalClient
	Prefix string
	Hub    *Hub
}

// Relay forwards every room broadcast received from Redis to the local hub.
type Relay struct {
	redis   redis.UniversalClient
	pattern string
	hub     *Hub
}

func NewRelay(c RelayConfig) *Relay {
	return &Relay{
		redis:   c.Redis,
		pattern: fmt.Sprintf("%s:room:*", c.Prefix),
		hub:     c.Hub,
	}
}

// Run blocks until ctx is done or the subscription breaks.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.redis.PSubscribe(ctx, r.pattern)
	defer sub.Close()

	// Wait for the subscription to be confirmed, so nothing published after Run started is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", r.pattern, err)
	}

	slog.InfoContext(ctx, "realtime: relay started", "pattern", r.pattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("realtime: subscription %s closed", r.pattern)
			}

			_ = r.hub.Publish(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}
