package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	clierrors "github.com/vango-dev/roomclient/internal/errors"
	"github.com/vango-dev/roomclient/pkg/presence"
	"github.com/vango-dev/roomclient/pkg/room"
)

func sendCmd(g *globalFlags) *cobra.Command {
	var (
		to      string
		service bool
		asJSON  bool
		file    string
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message to the room and exit",
		Long: `Join the room, connect, send one message and exit.

The message is broadcast to every connection unless --to names one
connection by id or by display name. With --json the argument is parsed
as a JSON value; with --file the file's bytes are sent as a binary
message. Service messages carry no sender and require room ownership.

Examples:
  roomctl send "hello"
  roomctl send --json '{"type":"ping"}' --to Bob
  roomctl send --file frame.bin --service`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := messageArg(args, asJSON, file)
			if err != nil {
				return err
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ls, err := open(ctx, cfg, &room.Config{Logger: newLogger(cfg, os.Stderr)})
			if err != nil {
				return err
			}
			defer ls.Close()

			callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeoutDuration())
			defer cancel()
			if err := sendMessage(callCtx, ls.Session, message, to, service); err != nil {
				return err
			}
			if to == "" {
				success(cmd, "Broadcast to %d connections", len(ls.Connections()))
			} else {
				success(cmd, "Sent to %s", to)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Recipient connection id or display name")
	cmd.Flags().BoolVar(&service, "service", false, "Send as a service message")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse the message as JSON")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Send the file contents as a binary message")

	return cmd
}

// messageArg returns the message to send from the command arguments.
func messageArg(args []string, asJSON bool, file string) (any, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, clierrors.New("R900").WithDetail("Pass either a message or --file, not both")
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return b, nil
	case len(args) == 0:
		return nil, clierrors.New("R900").WithDetail("A message or --file is required")
	case asJSON:
		var v any
		if err := json.Unmarshal([]byte(args[0]), &v); err != nil {
			return nil, clierrors.New("R301").Wrap(err)
		}
		return v, nil
	}
	return args[0], nil
}

// sendMessage broadcasts message, or sends it to the one connection
// whose id or display name is to.
func sendMessage(ctx context.Context, s *room.Session, message any, to string, service bool) error {
	if to == "" {
		return s.Broadcast(ctx, message, service)
	}
	c, err := recipient(s, to)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, message, service)
}

func recipient(s *room.Session, to string) (*presence.Connection, error) {
	if c, ok := s.Connection(to); ok {
		return c, nil
	}
	matches := s.SelectConnections(presence.ByName(to))
	switch len(matches) {
	case 0:
		return nil, clierrors.New("R900").WithDetail("No connection with id or name " + to)
	case 1:
		for _, c := range matches {
			return c, nil
		}
	}
	return nil, clierrors.New("R900").
		WithDetail(to + " matches several connections").
		WithSuggestion("Use the connection id instead")
}
