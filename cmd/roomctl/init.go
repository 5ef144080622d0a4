package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/roomclient/internal/config"
	clierrors "github.com/vango-dev/roomclient/internal/errors"
)

func initCmd(g *globalFlags) *cobra.Command {
	var (
		asYAML bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a roomctl config file",
		Long: `Write roomctl.json (or roomctl.yaml with --yaml) with default settings
and the values given by --url, --room and --resource.

Examples:
  roomctl init --url wss://rooms.example.com/ws --room lobby
  roomctl init --yaml ./deploy`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path, err := writeConfig(dir, g, asYAML, force)
			if err != nil {
				return err
			}
			success(cmd, "Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Write roomctl.yaml instead of roomctl.json")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// writeConfig writes a new config file into dir and returns its path.
func writeConfig(dir string, g *globalFlags, asYAML, force bool) (string, error) {
	name := config.ConfigFileName
	if asYAML {
		name = config.YAMLFileName
	}
	path := filepath.Join(dir, name)
	if !force && config.Exists(dir) {
		return "", clierrors.New("R901").
			WithDetail("A config file already exists in " + dir).
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	cfg := config.New()
	cfg.URL = g.url
	cfg.Room = g.room
	cfg.Resource = g.resource
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}
