// Package notify fans attendance events out to lecturer-facing views and downstream consumers.
// Delivery is best-effort and at-most-once; lecturers reconcile by re-fetching the attendance list.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType names an attendance event.
type EventType string

const (
	// EventNewScan is published after a scan is accepted.
	EventNewScan EventType = "new_scan"
	// EventSessionGenerated is published after a new session is created (not on reuse).
	EventSessionGenerated EventType = "session_generated"
)

// Event is the message delivered to subscribers. The JSON form is what the lecturer WebSocket receives.
type Event struct {
	Type      EventType `json:"type"`
	CourseID  string    `json:"courseId"`
	SessionID string    `json:"sessionId,omitempty"`
	StudentID string    `json:"studentId,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier publishes events for a course. Implementations must not block for long; callers treat errors as
// best-effort failures and never surface them to the scanning student.
type Notifier interface {
	Publish(ctx context.Context, courseID string, ev Event) error
}

// publishTimeout bounds a single async publish.
const publishTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before closing sinks, so in-flight
// async publishes can finish. Must be >= publishTimeout.
const ShutdownDrainDuration = publishTimeout

// PublishAsync runs Publish in a goroutine with a short timeout so the request is not blocked.
// n may be nil. The goroutine uses context.Background so request cancellation does not abort the publish.
func PublishAsync(n Notifier, courseID string, ev Event) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.Publish(ctx, courseID, ev); err != nil {
			log.Warn().Err(err).Str("course_id", courseID).Str("event", string(ev.Type)).Msg("notify: async publish failed")
		}
	}()
}

// Multi publishes to every notifier in order and joins their errors. Nil entries are skipped.
type Multi []Notifier

// Publish calls each notifier; a failing sink does not stop the others.
func (m Multi) Publish(ctx context.Context, courseID string, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, courseID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, string, Event) error { return nil }
