package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// streamAdder is the subset of the go-redis client used for publishing.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher forwards events to a Redis stream so other services can
// consume enrollment changes.
type RedisStreamPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisStreamPublisher builds a publisher for stream. The stream is trimmed
// approximately to maxLen entries when maxLen > 0.
func NewRedisStreamPublisher(client streamAdder, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Register subscribes the publisher to every enrollment event.
func (p *RedisStreamPublisher) Register(dispatcher Dispatcher) {
	if p == nil || p.client == nil || dispatcher == nil {
		return
	}
	dispatcher.Subscribe(EventEnrollmentCreated, p.Handle)
	dispatcher.Subscribe(EventEnrollmentTransitioned, p.Handle)
}

// Handle appends event to the stream.
func (p *RedisStreamPublisher) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":      event.ID,
			"type":          string(event.Type),
			"enrollment_id": event.EnrollmentID,
			"body":          string(body),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
