package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-service/internal/config"
	"github.com/spec-kit/enrollment-service/internal/events"
)

const redisConnectTimeout = 2 * time.Second

// Redis wraps the go-redis client that carries the enrollment event stream.
type Redis struct {
	Client *redis.Client

	stream    string
	streamMax int64
}

// NewRedis builds the client and probes it once. An unreachable server is
// logged, not fatal: the readiness probe reports it and publishing is best effort.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisConnectTimeout,
	})
	r := &Redis{Client: client, stream: cfg.EventStream, streamMax: cfg.EventStreamMaxLen}

	fields := []zap.Field{
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("stream", cfg.EventStream),
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		logger.Warn("unable to reach redis; enrollment events will not be streamed until it recovers",
			append(fields, zap.Error(err))...)
	} else {
		logger.Info("connected to redis", fields...)
	}
	return r
}

// StreamPublisher returns a publisher appending enrollment events to the configured stream.
func (r *Redis) StreamPublisher() *events.RedisStreamPublisher {
	if r == nil || r.Client == nil {
		return nil
	}
	return events.NewRedisStreamPublisher(r.Client, r.stream, r.streamMax)
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
