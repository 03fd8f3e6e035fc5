package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dominion.gg/internal/sim/tuning"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the dominion command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "dominion",
		Short: "Dominion world-state engine",
		Long: `dominion runs and inspects the sharded strategy simulation.

Available commands:
  serve     Run the chain host and websocket gateway
  shard     Show the chain addresses for a shard
  planet    Inspect procedurally generated planets
  commit    Commit to a fleet composition
  verify    Check a fleet reveal against a commitment
  battle    Offline battle tools
  replay    Summarize turn and audit logs

Use "dominion [command] --help" for more information about a command.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", tuning.DefaultPath, "path to dominion.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level")

	root.AddCommand(
		newServeCmd(opts),
		newShardCmd(opts),
		newPlanetCmd(opts),
		newCommitCmd(),
		newVerifyCmd(),
		newBattleCmd(opts),
		newReplayCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// tuning loads the config file. A missing file at the default path falls
// back to defaults so offline commands work outside a deployment.
func (o *rootOptions) tuning() (tuning.Tuning, error) {
	path := o.configPath
	if path == tuning.DefaultPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	t, err := tuning.Load(path)
	if err != nil {
		return t, err
	}
	if o.logLevel != "" {
		t.Log.Level = o.logLevel
	}
	return t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}
