// Package logging configures the process-wide zerolog logger.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// New returns a logger writing JSON to w, or a console writer when pretty is set.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// Setup installs New(os.Stderr, ...) as the global logger and as the fallback for log.Ctx on contexts
// that carry no logger.
func Setup(level string, pretty bool, service string) {
	l := New(os.Stderr, level, pretty).With().Str("service", service).Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
}

// ParseLevel maps a level name to zerolog.Level. Unknown or empty names select info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithTrace returns l with trace_id and span_id from the span in ctx, if it is valid.
func WithTrace(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return l
	}
	return l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// Into attaches a trace-annotated copy of the global logger to ctx, with extra string fields.
// Handlers and services then log through log.Ctx(ctx).
func Into(ctx context.Context, fields map[string]string) context.Context {
	l := WithTrace(ctx, log.Logger)
	if len(fields) > 0 {
		lc := l.With()
		for k, v := range fields {
			lc = lc.Str(k, v)
		}
		l = lc.Logger()
	}
	return l.WithContext(ctx)
}
