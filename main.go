package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/CrowderSoup/boardsync/config"
	"github.com/CrowderSoup/boardsync/logger"
	"github.com/spf13/cobra"
)

// app carries the configuration loaded before any subcommand runs.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "boardsync",
		Short:         "Collaborative kanban boards with live sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "boardsync.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Path to a .env file")

	root.AddCommand(
		newServeCmd(a),
		newTokenCmd(a),
		newWatchCmd(a),
		newMoveCmd(a),
		newMoveColumnCmd(a),
		newAddColumnCmd(a),
		newAddCardCmd(a),
	)

	return root
}

func (a *app) load() error {
	// Load environment variables from .env file
	if err := config.LoadEnv(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", a.envFile, err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	logger.Init(cfg.Log.Level)
	return nil
}
