package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tc := range testCases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", false)
	l.Info().Msg("hidden")
	l.Warn().Str("course_id", "c1").Msg("shown")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("output is not JSON: %q", out)
	}
	if m["message"] != "shown" || m["course_id"] != "c1" || m["level"] != "warn" {
		t.Errorf("log line = %v", m)
	}
	if _, ok := m["time"]; !ok {
		t.Error("log line should carry a timestamp")
	}
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "info", false)

	noSpan := WithTrace(context.Background(), base)
	noSpan.Info().Msg("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Error("trace_id should be absent without a span")
	}
	buf.Reset()

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	withSpan := WithTrace(ctx, base)
	withSpan.Info().Msg("with span")
	out := buf.String()
	if !strings.Contains(out, `"trace_id":"0102030405060708090a0b0c0d0e0f10"`) {
		t.Errorf("missing trace_id in %q", out)
	}
	if !strings.Contains(out, `"span_id":"0102030405060708"`) {
		t.Errorf("missing span_id in %q", out)
	}
}

func TestInto(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = New(&buf, "info", false)
	defer func() { log.Logger = prev }()

	ctx := Into(context.Background(), map[string]string{"request_id": "r-1"})
	log.Ctx(ctx).Info().Msg("hello")
	if !strings.Contains(buf.String(), `"request_id":"r-1"`) {
		t.Errorf("context logger missing field: %q", buf.String())
	}
}
