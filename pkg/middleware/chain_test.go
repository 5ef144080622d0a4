package middleware

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/roomtest"
	"github.com/vango-dev/roomclient/pkg/state"
	"github.com/vango-dev/roomclient/pkg/transport"
)

type traceObserver struct {
	room.NopObserver
	name string
	log  *[]string
}

func (o traceObserver) CallStart(ctx context.Context, verb string) (context.Context, func(error)) {
	*o.log = append(*o.log, "start "+o.name)
	return ctx, func(error) { *o.log = append(*o.log, "end "+o.name) }
}

func (o traceObserver) Roster(size int) {
	*o.log = append(*o.log, "roster "+o.name)
}

func TestChainOrder(t *testing.T) {
	var log []string
	obs := Chain(traceObserver{name: "a", log: &log}, traceObserver{name: "b", log: &log})

	_, done := obs.CallStart(context.Background(), "GetTime")
	done(nil)
	obs.Roster(1)

	want := []string{"start a", "start b", "end b", "end a", "roster a", "roster b"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestChainSingle(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()))
	if Chain(m) != room.Observer(m) {
		t.Error("Chain of one observer should return it unchanged")
	}
}

func TestSessionMetrics(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()))
	cfg := room.DefaultConfig()
	cfg.Observer = Chain(m, OpenTelemetry())
	s, _ := roomtest.NewSession(t, roomtest.WithConfig(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Connect(ctx, "web"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	roomtest.Eventually(t, s.Entered)
	if err := s.ChangeState(ctx, 1, state.MustPath("n"), false); err != nil {
		t.Fatalf("ChangeState() error = %v", err)
	}

	if got := testutil.ToFloat64(m.callsTotal.WithLabelValues("ChangeState", "success")); got != 1 {
		t.Errorf("calls_total(ChangeState) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues("out", transport.KindConnect.String())); got != 1 {
		t.Errorf("frames_total(out, Connect) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connections); got != 1 {
		t.Errorf("connections = %v, want 1", got)
	}
}
