package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"cheqr/backend/internal/notify"
)

// instrumentationName is the OTel logger and meter scope for attendance events.
const instrumentationName = "cheqr.attendance"

// recordEmitter is the subset of otellog.Logger the sink needs. Tests substitute a capture.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// EventSink is a notify.Notifier that records every attendance event as an OTel log record.
type EventSink struct {
	logger recordEmitter
}

// NewEventSink returns a sink writing through provider. A nil provider yields notify.Nop.
func NewEventSink(provider *sdklog.LoggerProvider) notify.Notifier {
	if provider == nil {
		return notify.Nop{}
	}
	return &EventSink{logger: provider.Logger(instrumentationName)}
}

// newEventSinkWithLogger is used by tests to capture records.
func newEventSinkWithLogger(l recordEmitter) *EventSink {
	return &EventSink{logger: l}
}

// Publish converts ev to a log record. Never fails.
func (s *EventSink) Publish(ctx context.Context, courseID string, ev notify.Event) error {
	rec := otellog.Record{}
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(string(ev.Type)))
	rec.AddAttributes(
		otellog.String("event_type", string(ev.Type)),
		otellog.String("course_id", courseID),
	)
	if ev.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", ev.SessionID))
	}
	if ev.StudentID != "" {
		rec.AddAttributes(otellog.String("student_id", ev.StudentID))
	}
	s.logger.Emit(ctx, rec)
	return nil
}
