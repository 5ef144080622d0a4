package room

import (
	"context"

	"github.com/vango-dev/roomclient/pkg/transport"
)

// Observer receives low-level session activity for metrics and tracing.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	// FrameIn is called for every message received from the transport.
	FrameIn(kind transport.Kind, size int)

	// FrameOut is called for every message handed to the transport.
	FrameOut(kind transport.Kind, size int)

	// CallStart is called before a text call is sent. The returned
	// function is called once with the call's outcome.
	CallStart(ctx context.Context, verb string) (context.Context, func(err error))

	// Roster is called with the roster size after every change.
	Roster(size int)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) FrameIn(transport.Kind, int)  {}
func (NopObserver) FrameOut(transport.Kind, int) {}
func (NopObserver) Roster(int)                   {}

func (NopObserver) CallStart(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
