package notification

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// streamAdder is the part of *redis.Client the stream publisher needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher appends events to a capped Redis stream.
type RedisStreamPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func NewRedisStreamPublisher(client streamAdder, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: 10000}
}

func (p *RedisStreamPublisher) Name() string { return "redis" }

func (p *RedisStreamPublisher) Publish(ctx context.Context, evt Event) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      evt.Type,
			"key":       evt.Key,
			"data":      string(evt.Data),
			"timestamp": strconv.FormatInt(evt.At.Unix(), 10),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
