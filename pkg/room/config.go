package room

import (
	"log/slog"

	"github.com/vango-dev/roomclient/pkg/clock"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// Config configures a Session.
type Config struct {
	// Logger receives session diagnostics. Per-frame events are logged at
	// Debug, dropped frames at Warn and protocol errors at Error.
	// Default: slog.Default().
	Logger *slog.Logger

	// Clock is the local time source used by SyncTime and timers.
	// Default: clock.Real().
	Clock clock.Clock

	// Observer receives frame and call activity.
	// Default: NopObserver.
	Observer Observer

	// Transport configures the websocket transport used by Dial.
	// Default: transport.DefaultConfig().
	Transport *transport.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger:    slog.Default(),
		Clock:     clock.Real(),
		Observer:  NopObserver{},
		Transport: transport.DefaultConfig(),
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	if out.Clock == nil {
		out.Clock = d.Clock
	}
	if out.Observer == nil {
		out.Observer = d.Observer
	}
	if out.Transport == nil {
		out.Transport = d.Transport
	}
	return &out
}
