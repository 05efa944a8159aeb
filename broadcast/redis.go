package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events on Redis pub/sub channels named prefix+topic
// so every API instance can relay them to its own subscribers.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("broadcast: marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("broadcast: redis publish: %w", err)
	}
	return nil
}

// Relay subscribes to the Redis channels for topics and republishes every
// message into hub. It blocks until ctx is done.
func Relay(ctx context.Context, client redis.UniversalClient, prefix string, hub *Hub, logger *slog.Logger, topics ...string) error {
	if len(topics) == 0 {
		topics = []string{TopicDashboard}
	}
	channels := make([]string, 0, len(topics))
	for _, t := range topics {
		channels = append(channels, prefix+t)
	}

	pubsub := client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("broadcast: discarding malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			_ = hub.Publish(ctx, strings.TrimPrefix(msg.Channel, prefix), ev)
		}
	}
}
