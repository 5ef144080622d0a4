package roomtest

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/state"
	"github.com/vango-dev/roomclient/pkg/transport"
)

func serve(t *testing.T) (*transport.Pipe, *Authority) {
	t.Helper()
	client, server := transport.NewPipe()
	auth := NewAuthority(server, protocol.RoomInfo{RoomID: "r"}, Conn("self", "acc", "Alice"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = auth.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		client.Close()
		<-done
	})
	return client, auth
}

func next(t *testing.T, p *transport.Pipe) transport.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := p.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	return msg
}

func request(t *testing.T, p *transport.Pipe, verb string, id uint32, params ...any) {
	t.Helper()
	req, err := protocol.NewRequest(verb, id, params...)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Send(transport.Text(req.Encode())); err != nil {
		t.Fatal(err)
	}
}

func TestConnectSendsSnapshot(t *testing.T) {
	client, _ := serve(t)
	_ = client.Send(transport.Connect("web"))

	if m := next(t, client); m.Kind != transport.KindConnectResult || !m.OK || m.Text != "web" {
		t.Fatalf("first message = %+v", m)
	}
	want := []protocol.EventName{protocol.EventConnectionInfo, protocol.EventRoomInfo}
	for _, name := range want {
		f, err := protocol.DecodeText(next(t, client).Text)
		if err != nil {
			t.Fatal(err)
		}
		if f.Event != name {
			t.Errorf("event = %s, want %s", f.Event, name)
		}
	}
}

func TestChangeStateHashCheck(t *testing.T) {
	client, auth := serve(t)
	auth.SetState(map[string]any{"score": 5.0})

	request(t, client, protocol.VerbChangeState, 1, state.MustPath("score"), 0, 6)
	f, _ := protocol.DecodeText(next(t, client).Text)
	if f.Kind != protocol.TextError || f.ID != 1 {
		t.Fatalf("stale write answer = %+v", f)
	}

	h, _ := state.Hash(5.0, true)
	request(t, client, protocol.VerbChangeState, 2, state.MustPath("score"), h, 6)
	f, _ = protocol.DecodeText(next(t, client).Text)
	if f.Event != protocol.EventRoomStateChanged {
		t.Fatalf("expected state delta, got %+v", f)
	}
	f, _ = protocol.DecodeText(next(t, client).Text)
	if f.Kind != protocol.TextResult || f.ID != 2 {
		t.Fatalf("answer = %+v", f)
	}
	got, _ := auth.State()
	if !reflect.DeepEqual(got, map[string]any{"score": 6.0}) {
		t.Errorf("State() = %#v", got)
	}
}

func TestGetTimeAndOverride(t *testing.T) {
	client, auth := serve(t)
	auth.SetNow(func() time.Time { return time.UnixMilli(1234) })

	request(t, client, protocol.VerbGetTime, 1)
	f, _ := protocol.DecodeText(next(t, client).Text)
	if string(f.Payload) != "1234" {
		t.Errorf("GetTime = %s, want 1234", f.Payload)
	}

	auth.Handle(protocol.VerbGetTime, func(*protocol.Request) (any, error) {
		return nil, &CallError{Payload: map[string]string{"code": "Busy"}}
	})
	request(t, client, protocol.VerbGetTime, 2)
	f, _ = protocol.DecodeText(next(t, client).Text)
	if f.Kind != protocol.TextError || string(f.Payload) != `{"code":"Busy"}` {
		t.Errorf("override answer = %+v", f)
	}
	if n := len(auth.Requests()); n != 2 {
		t.Errorf("Requests() = %d, want 2", n)
	}
}
