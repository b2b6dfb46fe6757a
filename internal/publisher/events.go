// Package publisher fans pipeline events out to Redis streams and live subscribers.
package publisher

import (
	"context"
	"errors"
	"time"
)

// EventType names a pipeline lifecycle event.
type EventType string

const (
	EventPipelineStarted   EventType = "pipeline.started"
	EventPipelineCompleted EventType = "pipeline.completed"
	EventPipelineFailed    EventType = "pipeline.failed"
	EventBackfillProgress  EventType = "backfill.progress"
	EventBackfillCompleted EventType = "backfill.completed"
)

// Event is one message on the pipeline feed.
type Event struct {
	Type      EventType              `json:"type"`
	Season    string                 `json:"season"`
	RunID     string                 `json:"run_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout publishes to every target, stamping the event once. Errors are joined; a failing
// target does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	event = stamp(event)
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
