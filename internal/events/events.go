// Package events fans job lifecycle notifications out to subscribers.
// Delivery is best effort; publishing never fails the job operation.
package events

import (
	"context"
	"time"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeSubmitted  Type = "submitted"
	TypeProcessing Type = "processing"
	TypeCompleted  Type = "completed"
	TypeFailed     Type = "failed"
)

// JobEvent is emitted after a job transition has been persisted.
type JobEvent struct {
	Type       Type      `json:"type"`
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	ImageCount int       `json:"image_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers job events.
type Publisher interface {
	Publish(ctx context.Context, evt JobEvent)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, JobEvent) {}

// Multi forwards each event to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt JobEvent) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, evt)
		}
	}
}
