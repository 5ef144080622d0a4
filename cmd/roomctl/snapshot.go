package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/roomclient/pkg/archive"
	"github.com/vango-dev/roomclient/pkg/room"
)

func snapshotCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save and read archived state snapshots",
		Long: `Snapshots are compressed JSON copies of the room state stored in the
configured S3 bucket under <prefix><room>/<digest>.json.zst, where the
digest is a keyed BLAKE3 hash of the snapshot.`,
	}
	cmd.AddCommand(snapshotGetCmd(g), snapshotSaveCmd(g))
	return cmd
}

func snapshotGetCmd(g *globalFlags) *cobra.Command {
	var stateOnly bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Download a snapshot and print it",
		Long: `Download a snapshot, verify its digest and print it as JSON.

The room service is not contacted, so --url and --room are optional.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.resolve()
			if err != nil {
				return err
			}
			store, err := newArchiveStore(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CallTimeoutDuration())
			defer cancel()
			snap, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap, stateOnly)
		},
	}

	cmd.Flags().BoolVar(&stateOnly, "state", false, "Print only the state tree")

	return cmd
}

func snapshotSaveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Join the room, archive its current state and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			store, err := newArchiveStore(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ls, err := open(ctx, cfg, &room.Config{Logger: newLogger(cfg, os.Stderr)})
			if err != nil {
				return err
			}
			defer ls.Close()

			key, err := saveSnapshot(ctx, store, ls.Session, cfg.CallTimeoutDuration())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

// saveSnapshot captures the state of s and uploads it.
func saveSnapshot(ctx context.Context, store *archive.Store, s *room.Session, timeout time.Duration) (string, error) {
	snap, err := archive.Capture(s)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return store.Save(ctx, snap)
}

// printSnapshot writes snap, or only its state tree, as indented JSON.
// An absent state prints as null.
func printSnapshot(w io.Writer, snap *archive.Snapshot, stateOnly bool) error {
	var v any = snap
	if stateOnly {
		tree, _, err := snap.Decode()
		if err != nil {
			return err
		}
		v = tree
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
