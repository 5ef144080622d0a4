// Package middleware provides observability for room sessions.
//
// This package includes:
//   - Prometheus metrics observer
//   - OpenTelemetry call tracing observer
//   - Chain, to install several observers on one session
//
// # OpenTelemetry
//
// The tracing observer starts a client span for every call the session
// makes (SendMessage, ChangeState, BulkChangeState, SetAccess, GetTime).
// The span ends when the response arrives and records the error, if any.
//
//	cfg := room.DefaultConfig()
//	cfg.Observer = middleware.OpenTelemetry(
//	    middleware.WithTracerName("scoreboard"),
//	    middleware.WithRoomID(roomID),
//	)
//
// # Prometheus Metrics
//
// The metrics observer counts frames and bytes in each direction, times
// calls, and tracks the roster size:
//   - room_frames_total
//   - room_frame_bytes_total
//   - room_calls_total
//   - room_call_duration_seconds
//   - room_call_errors_total
//   - room_connections
//
// Expose them with promhttp, or mount pkg/inspect which does so:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Combining
//
//	cfg.Observer = middleware.Chain(
//	    middleware.Prometheus(),
//	    middleware.OpenTelemetry(),
//	)
package middleware
