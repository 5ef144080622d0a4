package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clierrors "github.com/vango-dev/roomclient/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		clierrors.Fprint(os.Stderr, classify(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "roomctl",
		Short: "Command-line client for shared rooms",
		Long: `roomctl joins a room on a room service and talks to it from the terminal.

  • Watch presence, messages, door and state changes as they happen
  • Broadcast or send direct messages
  • Write the shared room state
  • Archive state snapshots to S3 and read them back`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (default: roomctl.json or roomctl.yaml in the project root)")
	pf.StringVar(&g.url, "url", "", "Room service websocket URL")
	pf.StringVarP(&g.room, "room", "r", "", "Room id")
	pf.StringVar(&g.resource, "resource", "", "Resource name to connect as (default: random)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		initCmd(g),
		watchCmd(g),
		sendCmd(g),
		setCmd(g),
		getCmd(g),
		snapshotCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", fmt.Sprintf(format, args...))
}
