package middleware

import (
	"context"

	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// Chain combines observers. Calls are wrapped outermost-first: the first
// observer's context is passed to the second, and completions run in
// reverse order.
func Chain(observers ...room.Observer) room.Observer {
	if len(observers) == 1 {
		return observers[0]
	}
	return chain(observers)
}

type chain []room.Observer

func (c chain) FrameIn(kind transport.Kind, size int) {
	for _, o := range c {
		o.FrameIn(kind, size)
	}
}

func (c chain) FrameOut(kind transport.Kind, size int) {
	for _, o := range c {
		o.FrameOut(kind, size)
	}
}

func (c chain) Roster(size int) {
	for _, o := range c {
		o.Roster(size)
	}
}

func (c chain) CallStart(ctx context.Context, verb string) (context.Context, func(error)) {
	done := make([]func(error), len(c))
	for i, o := range c {
		ctx, done[i] = o.CallStart(ctx, verb)
	}
	return ctx, func(err error) {
		for i := len(done) - 1; i >= 0; i-- {
			done[i](err)
		}
	}
}
