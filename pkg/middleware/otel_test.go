package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordingProvider struct {
	embedded.TracerProvider

	mu    sync.Mutex
	spans []*recordedSpan
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{p: p}
}

type recordingTracer struct {
	embedded.Tracer
	p *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordedSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()}
	t.p.mu.Lock()
	t.p.spans = append(t.p.spans, s)
	t.p.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordedSpan struct {
	noop.Span

	name   string
	kind   trace.SpanKind
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) { s.attrs = append(s.attrs, kv...) }
func (s *recordedSpan) SetStatus(c codes.Code, _ string)       { s.status = c }
func (s *recordedSpan) End(...trace.SpanEndOption)             { s.ended = true }

func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordedSpan) attr(key string) (string, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestOpenTelemetrySpan(t *testing.T) {
	tp := &recordingProvider{}
	tr := OpenTelemetry(
		WithTracerProvider(tp),
		WithRoomID("room-1"),
		WithAttributeExtractor(func(context.Context, string) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)

	ctx, done := tr.CallStart(context.Background(), "GetTime")
	if trace.SpanFromContext(ctx) != tp.spans[0] {
		t.Fatal("call context does not carry the span")
	}
	done(nil)

	s := tp.spans[0]
	if s.name != "room.GetTime" || s.kind != trace.SpanKindClient {
		t.Errorf("span = %q kind %v", s.name, s.kind)
	}
	for key, want := range map[string]string{"room.verb": "GetTime", "room.id": "room-1", "test.attr": "ok"} {
		if got, _ := s.attr(key); got != want {
			t.Errorf("attribute %s = %q, want %q", key, got, want)
		}
	}
	if !s.ended || s.status != codes.Ok {
		t.Errorf("ended = %v status = %v", s.ended, s.status)
	}
}

func TestOpenTelemetryError(t *testing.T) {
	tp := &recordingProvider{}
	tr := OpenTelemetry(WithTracerProvider(tp))

	boom := errors.New("boom")
	_, done := tr.CallStart(context.Background(), "SetAccess")
	done(boom)

	s := tp.spans[0]
	if s.status != codes.Error || len(s.errs) != 1 || s.errs[0] != boom {
		t.Errorf("status = %v errs = %v", s.status, s.errs)
	}
	if got, _ := s.attr("room.error_type"); got != "internal" {
		t.Errorf("room.error_type = %q", got)
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	tp := &recordingProvider{}
	tr := OpenTelemetry(WithTracerProvider(tp), WithCallFilter(func(verb string) bool {
		return verb != "GetTime"
	}))

	_, done := tr.CallStart(context.Background(), "GetTime")
	done(nil)
	if len(tp.spans) != 0 {
		t.Errorf("filtered call produced %d spans", len(tp.spans))
	}
}
