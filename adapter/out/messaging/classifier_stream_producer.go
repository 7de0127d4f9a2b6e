// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"classifier_server/core/port/out"
)

// Stream names
const (
	StreamClassify   = "classifier:classify"
	StreamFeedback   = "classifier:feedback"
	StreamClassified = "classifier:classified"
)

// dlqPrefix prefixes the dead letter stream of every consumed stream.
const dlqPrefix = "dlq:"

// defaultMaxLen caps published streams (approximate trimming).
const defaultMaxLen = 100000

// RedisProducer implements out.ClassificationPublisher using Redis Streams.
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, maxLen: defaultMaxLen}
}

// PublishClassified publishes a classification result.
func (p *RedisProducer) PublishClassified(ctx context.Context, event *out.ClassifiedEvent) error {
	return p.publish(ctx, StreamClassified, event)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

// Ensure RedisProducer implements out.ClassificationPublisher
var _ out.ClassificationPublisher = (*RedisProducer)(nil)
