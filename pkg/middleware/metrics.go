package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/rpc"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "room").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for call duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "room",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a room.Observer that records Prometheus metrics.
//
// Metrics collected:
//   - room_frames_total: frames by direction and kind
//   - room_frame_bytes_total: frame payload bytes by direction and kind
//   - room_calls_total: calls by verb and status
//   - room_call_duration_seconds: call round trip histogram by verb
//   - room_call_errors_total: failed calls by verb and error type
//   - room_connections: connections currently in the roster
//
// Metrics are registered on creation; create one Metrics per registry
// and share it between sessions.
type Metrics struct {
	frames       *prometheus.CounterVec
	frameBytes   *prometheus.CounterVec
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
	connections  prometheus.Gauge
}

// Prometheus creates an observer that collects room session metrics.
//
// Example:
//
//	cfg := room.DefaultConfig()
//	cfg.Observer = middleware.Prometheus(middleware.WithNamespace("myapp"))
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of transport frames by direction and kind",
			ConstLabels: config.ConstLabels,
		}, []string{"direction", "kind"}),

		frameBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_bytes_total",
			Help:        "Total transport frame payload bytes by direction and kind",
			ConstLabels: config.ConstLabels,
		}, []string{"direction", "kind"}),

		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "calls_total",
			Help:        "Total number of calls to the room service",
			ConstLabels: config.ConstLabels,
		}, []string{"verb", "status"}),

		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "call_duration_seconds",
			Help:        "Call round trip duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"verb"}),

		callErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "call_errors_total",
			Help:        "Total number of failed calls by error type",
			ConstLabels: config.ConstLabels,
		}, []string{"verb", "error_type"}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections",
			Help:        "Number of connections in the room roster",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// FrameIn records an inbound frame.
func (m *Metrics) FrameIn(kind transport.Kind, size int) {
	m.frames.WithLabelValues("in", kind.String()).Inc()
	m.frameBytes.WithLabelValues("in", kind.String()).Add(float64(size))
}

// FrameOut records an outbound frame.
func (m *Metrics) FrameOut(kind transport.Kind, size int) {
	m.frames.WithLabelValues("out", kind.String()).Inc()
	m.frameBytes.WithLabelValues("out", kind.String()).Add(float64(size))
}

// CallStart times a call.
func (m *Metrics) CallStart(ctx context.Context, verb string) (context.Context, func(error)) {
	start := time.Now()
	return ctx, func(err error) {
		m.callDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
			m.callErrors.WithLabelValues(verb, categorizeError(verb, err)).Inc()
		}
		m.callsTotal.WithLabelValues(verb, status).Inc()
	}
}

// Roster records the roster size.
func (m *Metrics) Roster(size int) {
	m.connections.Set(float64(size))
}

// categorizeError returns a category for the error type.
// This prevents high-cardinality labels from error messages.
func categorizeError(verb string, err error) string {
	var re *rpc.RemoteError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, transport.ErrClosed):
		return "closed"
	case errors.As(err, &re):
		// the service rejects state writes only on a hash mismatch
		if verb == protocol.VerbChangeState || verb == protocol.VerbBulkChangeState {
			return "conflict"
		}
		return "remote"
	default:
		return "internal"
	}
}

var _ room.Observer = (*Metrics)(nil)
