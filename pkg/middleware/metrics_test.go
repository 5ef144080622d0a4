package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/rpc"
	"github.com/vango-dev/roomclient/pkg/transport"
)

func TestPrometheusFrames(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()))

	m.FrameIn(transport.KindText, 10)
	m.FrameIn(transport.KindText, 5)
	m.FrameOut(transport.KindBinary, 7)

	if got := testutil.ToFloat64(m.frames.WithLabelValues("in", "Text")); got != 2 {
		t.Errorf("frames_total(in, Text) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.frameBytes.WithLabelValues("in", "Text")); got != 15 {
		t.Errorf("frame_bytes_total(in, Text) = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues("out", "Binary")); got != 1 {
		t.Errorf("frames_total(out, Binary) = %v, want 1", got)
	}
}

func TestPrometheusCalls(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	_, done := m.CallStart(context.Background(), protocol.VerbGetTime)
	done(nil)
	_, done = m.CallStart(context.Background(), protocol.VerbChangeState)
	done(&rpc.RemoteError{Verb: protocol.VerbChangeState, ID: 2})

	if got := testutil.ToFloat64(m.callsTotal.WithLabelValues(protocol.VerbGetTime, "success")); got != 1 {
		t.Errorf("calls_total(GetTime, success) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.callErrors.WithLabelValues(protocol.VerbChangeState, "conflict")); got != 1 {
		t.Errorf("call_errors_total(ChangeState, conflict) = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.callDuration); n != 2 {
		t.Errorf("call_duration_seconds series = %d, want 2", n)
	}
}

func TestPrometheusRoster(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()))
	m.Roster(3)
	m.Roster(2)
	if got := testutil.ToFloat64(m.connections); got != 2 {
		t.Errorf("connections = %v, want 2", got)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		verb string
		err  error
		want string
	}{
		{protocol.VerbGetTime, context.DeadlineExceeded, "timeout"},
		{protocol.VerbGetTime, context.Canceled, "canceled"},
		{protocol.VerbSetAccess, transport.ErrClosed, "closed"},
		{protocol.VerbSetAccess, &rpc.RemoteError{Verb: protocol.VerbSetAccess}, "remote"},
		{protocol.VerbBulkChangeState, &rpc.RemoteError{Verb: protocol.VerbBulkChangeState}, "conflict"},
		{protocol.VerbSendMessage, errors.New("boom"), "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := categorizeError(tc.verb, tc.err); got != tc.want {
				t.Errorf("categorizeError() = %q, want %q", got, tc.want)
			}
		})
	}
}
