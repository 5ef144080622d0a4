package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// Default tracer name for room sessions.
const defaultTracerName = "roomclient"

// OTelConfig configures the OpenTelemetry observer.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "roomclient").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider (otel.GetTracerProvider()).
	TracerProvider trace.TracerProvider

	// RoomID is recorded on every span when set.
	RoomID string

	// Filter determines which calls to trace by verb.
	// If nil, all calls are traced.
	Filter func(verb string) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(ctx context.Context, verb string) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry observer.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithRoomID records the room id on every span.
func WithRoomID(id string) OTelOption {
	return func(c *OTelConfig) {
		c.RoomID = id
	}
}

// WithCallFilter sets a filter function for calls.
func WithCallFilter(filter func(verb string) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ctx context.Context, verb string) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// Tracer is a room.Observer that traces every call to the room service.
type Tracer struct {
	config OTelConfig
	tracer trace.Tracer
}

// OpenTelemetry creates an observer that starts a client span per call.
// The span is named "room.<Verb>", carries the verb and room id, and
// records the call's error and status when the response arrives. The
// call's context carries the span, so hooks further down see it.
//
// Example:
//
//	cfg := room.DefaultConfig()
//	cfg.Observer = middleware.OpenTelemetry(middleware.WithRoomID(roomID))
//
// Configure the global provider in main() before joining:
//
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) *Tracer {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{config: config, tracer: tp.Tracer(config.TracerName)}
}

// CallStart starts the span for a call.
func (t *Tracer) CallStart(ctx context.Context, verb string) (context.Context, func(error)) {
	if t.config.Filter != nil && !t.config.Filter(verb) {
		return ctx, func(error) {}
	}

	attrs := []attribute.KeyValue{attribute.String("room.verb", verb)}
	if t.config.RoomID != "" {
		attrs = append(attrs, attribute.String("room.id", t.config.RoomID))
	}
	if t.config.AttributeExtractor != nil {
		attrs = append(attrs, t.config.AttributeExtractor(ctx, verb)...)
	}

	ctx, span := t.tracer.Start(ctx, "room."+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("room.error_type", categorizeError(verb, err)))
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

// FrameIn does nothing; frames are not traced.
func (t *Tracer) FrameIn(transport.Kind, int) {}

// FrameOut does nothing; frames are not traced.
func (t *Tracer) FrameOut(transport.Kind, int) {}

// Roster does nothing.
func (t *Tracer) Roster(int) {}

var _ room.Observer = (*Tracer)(nil)
