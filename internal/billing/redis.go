package billing

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"medgas-backend/config"
)

// Streamer is the part of a redis client the emitter uses.
type Streamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisEmitter appends events to a Redis stream consumed by the billing service.
type RedisEmitter struct {
	client Streamer
	stream string
}

// NewRedisEmitter connects to the configured Redis.
func NewRedisEmitter(cfg config.RedisConfig) *RedisEmitter {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewStreamEmitter(client, cfg.Stream)
}

// NewStreamEmitter wraps an existing client.
func NewStreamEmitter(client Streamer, stream string) *RedisEmitter {
	return &RedisEmitter{client: client, stream: stream}
}

func (e *RedisEmitter) SiteCreated(ctx context.Context, ev SiteCreated) error {
	_, err := e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		Values: ev.fields(),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", e.stream, err)
	}
	return nil
}
