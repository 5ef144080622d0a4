package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/roomclient/internal/config"
	clierrors "github.com/vango-dev/roomclient/internal/errors"
	"github.com/vango-dev/roomclient/pkg/archive"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/rpc"
	"github.com/vango-dev/roomclient/pkg/state"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	url        string
	room       string
	resource   string
	logLevel   string

	// lookupEnv defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
}

// load resolves and validates the configuration.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := g.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve layers the configuration: file, then environment, then flags.
// A missing config file is not an error when flags supply the rest.
func (g *globalFlags) resolve() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		var ce *clierrors.CLIError
		if errors.As(err, &ce) && ce.Code == "R120" {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	lookup := g.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg.ApplyEnv(lookup)

	if g.url != "" {
		cfg.URL = g.url
	}
	if g.room != "" {
		cfg.Room = g.room
	}
	if g.resource != "" {
		cfg.Resource = g.resource
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// resourceName returns the configured resource or a fresh random one.
func resourceName(cfg *config.Config) string {
	if cfg.Resource != "" {
		return cfg.Resource
	}
	return "roomctl-" + uuid.NewString()
}

// liveSession is a session that has entered its room, together with the
// goroutine running its receive loop.
type liveSession struct {
	*room.Session
	done   chan error
	cancel context.CancelFunc
}

// open joins the configured room over a websocket and enters it.
func open(ctx context.Context, cfg *config.Config, rc *room.Config) (*liveSession, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeoutDuration())
	defer cancel()

	s, err := room.Dial(dialCtx, cfg.URL, cfg.Room, rc)
	if err != nil {
		return nil, err
	}
	return enter(ctx, s, resourceName(cfg), cfg.CallTimeoutDuration())
}

// enter starts the receive loop of s, connects it under resource and
// waits for the room snapshot.
func enter(ctx context.Context, s *room.Session, resource string, timeout time.Duration) (*liveSession, error) {
	runCtx, stop := context.WithCancel(context.Background())
	ls := &liveSession{Session: s, done: make(chan error, 1), cancel: stop}
	go func() { ls.done <- s.Run(runCtx) }()

	entered := make(chan struct{}, 1)
	unsubscribe := s.OnEnter().Subscribe(func(*room.Session) {
		select {
		case entered <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.Connect(ctx, resource); err != nil {
		ls.Close()
		return nil, err
	}
	if s.Entered() {
		return ls, nil
	}
	select {
	case <-entered:
		return ls, nil
	case err := <-ls.done:
		ls.done <- err
		ls.Close()
		return nil, fmt.Errorf("room closed before entering: %w", err)
	case <-ctx.Done():
		ls.Close()
		return nil, fmt.Errorf("waiting for room snapshot: %w", ctx.Err())
	}
}

// Close disconnects, destroys the session and waits for the receive loop.
func (ls *liveSession) Close() error {
	ls.Disconnect("roomctl exit")
	err := ls.Destroy()
	ls.cancel()
	<-ls.done
	return err
}

// classify turns library errors into CLI errors with hints. Errors it
// does not recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		ce       *clierrors.CLIError
		connect  *room.ConnectError
		conflict *room.StateConflictError
		remote   *rpc.RemoteError
	)
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, transport.ErrNotPermitted):
		return clierrors.New("R201").Wrap(err).
			WithSuggestion("Ask the room owner to allow your account")
	case errors.Is(err, transport.ErrHandshake):
		return clierrors.New("R200").Wrap(err).
			WithSuggestion("Check the room id and that the URL points at a room service")
	case errors.As(err, &connect):
		return clierrors.New("R202").Wrap(err).
			WithDetail("Resource " + connect.Resource + " was refused: " + connect.Reason)
	case errors.As(err, &conflict):
		return clierrors.New("R300").Wrap(err).
			WithSuggestion("Re-run with --force to overwrite regardless of the current value")
	case errors.Is(err, room.ErrPermission):
		return clierrors.New("R204").Wrap(err)
	case errors.Is(err, state.ErrPathMismatch),
		errors.Is(err, state.ErrForbiddenKey),
		errors.Is(err, state.ErrInvalidPath):
		return clierrors.New("R302").Wrap(err)
	case errors.Is(err, archive.ErrNotFound):
		return clierrors.New("R400").Wrap(err)
	case errors.Is(err, archive.ErrCorrupt):
		return clierrors.New("R401").Wrap(err)
	case errors.Is(err, archive.ErrInvalidKey):
		return clierrors.New("R900").Wrap(err).
			WithSuggestion("Snapshot keys look like rooms/<room>/<digest>.json.zst")
	case errors.As(err, &remote):
		return clierrors.New("R203").Wrap(err)
	}
	return err
}
