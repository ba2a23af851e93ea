package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "dispatch:"

// RedisSink publishes notifications on Redis pub/sub channels named
// dispatch:<topic>.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink creates a new RedisSink.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Publish sends the payload to the topic's channel.
func (s *RedisSink) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.client.Publish(ctx, redisChannelPrefix+topic, payload).Err()
}
