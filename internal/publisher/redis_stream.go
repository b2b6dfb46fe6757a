package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PipelineStream is the Redis stream pipeline events are appended to.
const PipelineStream = "linemate.pipeline"

// streamMaxLen caps the stream; older entries are trimmed approximately.
const streamMaxLen = 1000

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		stream: PipelineStream,
	}
}

// Publish appends the event to the pipeline stream.
func (rsp *RedisStreamPublisher) Publish(ctx context.Context, event Event) error {
	event = stamp(event)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	return rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rsp.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      string(event.Type),
			"season":    event.Season,
			"data":      string(data),
			"timestamp": event.Timestamp.Unix(),
		},
	}).Err()
}

// Recent reads the newest events from the stream, newest first.
func (rsp *RedisStreamPublisher) Recent(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := rsp.client.XRevRangeN(ctx, rsp.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rsp.stream, err)
	}

	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// stamp sets the event time when the caller left it empty.
func stamp(e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}
