package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clierrors "github.com/vango-dev/roomclient/internal/errors"
	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/state"
)

func setCmd(g *globalFlags) *cobra.Command {
	var force, del bool

	cmd := &cobra.Command{
		Use:   "set <json> [path...]",
		Short: "Write the room state and exit",
		Long: `Join the room, connect, write one value into the shared state and exit.

Path arguments made only of digits are array indices; anything else is
an object key. Prefix an argument with a backslash to force a key
("\0" is the key "0"). Without a path the whole state is replaced.

The write is rejected if the value at the path changed since the room
snapshot was received, unless --force is given. With --delete every
argument is part of the path and the value there is removed.

Examples:
  roomctl set '{"round":1}'
  roomctl set '"Alice"' players 0 name
  roomctl set --delete players 2`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := modifierArgs(args, del, force)
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
			if err := ls.ModifyState(callCtx, mod); err != nil {
				return err
			}
			v, ok := ls.SelectState(mod.Path)
			if !ok {
				success(cmd, "Deleted %s", mod.Path)
				return nil
			}
			b, err := protocol.MarshalJSON(v)
			if err != nil {
				return err
			}
			success(cmd, "%s = %s", mod.Path, b)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Write even if the state changed since it was read")
	cmd.Flags().BoolVar(&del, "delete", false, "Delete the value at the path")

	return cmd
}

// modifierArgs turns set arguments into a state modification.
func modifierArgs(args []string, del, force bool) (state.Modifier, error) {
	if del {
		return state.Modifier{Path: state.ParseArgs(args), Delete: true, IgnoreHash: force}, nil
	}
	if len(args) == 0 {
		return state.Modifier{}, clierrors.New("R900").WithDetail("A JSON value is required")
	}
	var v any
	if err := json.Unmarshal([]byte(args[0]), &v); err != nil {
		return state.Modifier{}, clierrors.New("R301").
			Wrap(err).
			WithSuggestion(fmt.Sprintf("Quote strings as JSON, e.g. '%q'", args[0]))
	}
	path := state.ParseArgs(args[1:])
	if err := path.Validate(); err != nil {
		return state.Modifier{}, err
	}
	return state.Modifier{Path: path, Data: v, IgnoreHash: force}, nil
}

// getState returns the JSON encoding of the value at path.
func getState(s *room.Session, path state.Path, indent bool) ([]byte, error) {
	v, ok := s.SelectState(path)
	if !ok {
		return nil, clierrors.New("R302").WithDetail("Nothing at " + path.String())
	}
	if indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return protocol.MarshalJSON(v)
}

func getCmd(g *globalFlags) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "get [path...]",
		Short: "Print the room state and exit",
		Long: `Join the room, connect, print the value at the path (or the whole
state) as JSON and exit. Paths use the same syntax as roomctl set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := state.ParseArgs(args)
			if err := path.Validate(); err != nil {
				return err
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}

			ls, err := open(cmd.Context(), cfg, &room.Config{Logger: newLogger(cfg, os.Stderr)})
			if err != nil {
				return err
			}
			defer ls.Close()

			b, err := getState(ls.Session, path, !compact)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "Print compact JSON")

	return cmd
}
