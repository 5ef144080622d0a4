package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/roomclient/internal/config"
	"github.com/vango-dev/roomclient/pkg/archive"
	"github.com/vango-dev/roomclient/pkg/clock"
	"github.com/vango-dev/roomclient/pkg/inspect"
	"github.com/vango-dev/roomclient/pkg/middleware"
	"github.com/vango-dev/roomclient/pkg/presence"
	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/state"
)

type watchOptions struct {
	serveHTTP bool
	addr      string
	writable  bool
	archive   bool
	syncTime  bool
}

func watchCmd(g *globalFlags) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a room and log everything that happens in it",
		Long: `Join a room, connect, and log every presence, message, door and
state notification until interrupted.

With --http an inspection server exposes the room state, roster, door,
clock estimate and Prometheus metrics. With --archive a compressed state
snapshot is uploaded to S3 whenever the state changes (at most once per
archive interval) and once more on exit.

Examples:
  roomctl watch --url wss://rooms.example.com/ws --room lobby
  roomctl watch --http --addr :7070
  roomctl watch --archive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = opts.addr
			}
			if opts.writable {
				cfg.HTTP.ReadOnly = false
			}
			return runWatch(cmd, cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.serveHTTP, "http", false, "Serve the inspection API")
	cmd.Flags().StringVar(&opts.addr, "addr", config.DefaultHTTPAddr, "Inspection API listen address")
	cmd.Flags().BoolVar(&opts.writable, "writable", false, "Enable inspection endpoints that write to the room")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "Upload state snapshots to the configured bucket")
	cmd.Flags().BoolVar(&opts.syncTime, "sync-time", true, "Estimate the room clock after entering")

	return cmd
}

func runWatch(cmd *cobra.Command, cfg *config.Config, opts watchOptions) error {
	logger := newLogger(cfg, os.Stderr)

	registry := prometheus.NewRegistry()
	metrics := middleware.Prometheus(
		middleware.WithRegistry(registry),
		middleware.WithConstLabels(prometheus.Labels{"room": cfg.Room}),
	)
	tracer := middleware.OpenTelemetry(middleware.WithRoomID(cfg.Room))

	rc := &room.Config{
		Logger:   logger,
		Clock:    clock.Real(),
		Observer: middleware.Chain(metrics, tracer),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ls, err := open(ctx, cfg, rc)
	if err != nil {
		return err
	}
	defer ls.Close()

	success(cmd, "Entered %s as %s (%d connections)", ls.ID(), ls.Resource(), len(ls.Connections()))

	disconnected := make(chan string, 1)
	unwatch := watch(ls.Session, logger, disconnected)
	defer unwatch()

	if opts.syncTime {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeoutDuration())
		if _, err := ls.SyncTime(callCtx); err != nil {
			logger.Warn("time sync failed", "error", err)
		}
		cancel()
	}

	if opts.serveHTTP {
		srv := &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: inspect.Handler(ls.Session, &inspect.Config{
				Logger:      logger,
				Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
				ReadOnly:    cfg.HTTP.ReadOnly,
				CallTimeout: cfg.CallTimeoutDuration(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		ln, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("inspect: listen: %w", err)
		}
		info(cmd, "Inspection API on http://%s", ln.Addr())

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("inspect server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	recordCtx, stopRecording := context.WithCancel(ctx)
	defer stopRecording()
	recorded := make(chan struct{})
	if !opts.archive {
		close(recorded)
	} else {
		store, err := newArchiveStore(cfg)
		if err != nil {
			return err
		}
		rec := archive.NewRecorder(store.WithLogger(logger), ls.Session, cfg.ArchiveInterval())
		rec.OnSave = func(key string, err error) {
			if err == nil {
				logger.Info("snapshot saved", "key", key)
			}
		}
		info(cmd, "Archiving snapshots to s3://%s/%s", cfg.Archive.Bucket, cfg.Archive.Prefix)

		go func() {
			defer close(recorded)
			rec.Run(recordCtx)
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		info(cmd, "Shutting down...")
	case reason := <-disconnected:
		result = fmt.Errorf("disconnected by room: %s", reason)
	case err := <-ls.done:
		ls.done <- err
		result = fmt.Errorf("room connection lost: %w", err)
	}

	// The final snapshot must be taken before the deferred Close tears
	// the session down.
	stopRecording()
	<-recorded
	return result
}

// watch logs every session notification. Remote disconnect reasons are
// forwarded to disconnected. It returns a function that unsubscribes all.
func watch(s *room.Session, logger *slog.Logger, disconnected chan<- string) func() {
	d := s.Door()
	stops := []func(){
		s.OnJoin().Subscribe(func(c *presence.Connection) {
			logger.Info("joined", "connection", c.ID(), "account", c.AccountID(), "name", c.Name())
		}),
		s.OnLeave().Subscribe(func(c *presence.Connection) {
			logger.Info("left", "connection", c.ID(), "name", c.Name())
		}),
		s.OnMessage().Subscribe(func(m presence.Message) {
			from := ""
			if m.From != nil {
				from = m.From.ID()
			}
			logger.Info("message", "from", from, "data", messageText(m.Data))
		}),
		s.OnStateChange().Subscribe(func(c state.Change) {
			if c.Path == nil {
				logger.Info("state snapshot", "present", c.Present)
				return
			}
			v, _ := state.Select(c.State, c.Path)
			logger.Info("state changed", "path", c.Path.String(), "value", messageText(v))
		}),
		s.OnKnock().Subscribe(func(a protocol.Account) {
			logger.Info("knock", "account", a.ID, "name", a.Name)
		}),
		d.OnModeChanged().Subscribe(func(m protocol.DoorMode) {
			logger.Info("door mode changed", "mode", string(m))
		}),
		d.OnAllowlistChanged().Subscribe(func(ids []string) {
			logger.Info("allowlist changed", "accounts", ids)
		}),
		d.OnBlocklistChanged().Subscribe(func(ids []string) {
			logger.Info("blocklist changed", "accounts", ids)
		}),
		s.OnTimeSync().Subscribe(func(e clock.Estimate) {
			logger.Info("time synced", "offset", e.Offset, "accuracy", e.Accuracy)
		}),
		s.OnError().Subscribe(func(err error) {
			logger.Warn("session error", "error", err)
		}),
		s.OnDisconnect().Subscribe(func(reason string) {
			select {
			case disconnected <- reason:
			default:
			}
		}),
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// messageText renders a message or state value for a log line.
func messageText(v any) string {
	switch v := v.(type) {
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case string:
		return v
	}
	b, err := protocol.MarshalJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
