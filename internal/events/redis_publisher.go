package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans committed events out to other processes over a Redis
// pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher builds a publisher for channel.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = "ticket-lifecycle.events"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Handle publishes the event as JSON. It satisfies EventHandler.
func (p *RedisPublisher) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}
