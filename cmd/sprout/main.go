package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/cmd/sprout/commands"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sprout",
	Short: "sprout - real-time learning graph sync engine",
	Long: `sprout - real-time learning graph sync engine.

sprout consumes the event stream of a graph-generation pipeline, resolves
out-of-order node and edge events, batches them into a graph store and
computes which nodes are locked behind incomplete prerequisites.

Available commands:
  stream  - Run a pipeline stream and apply its mutations
  locks   - Refresh a user's graph and show lock state per branch
  serve   - Serve the graph store to renderers over WebSocket
  am      - Manage sprout configuration ("I am")
  version - Show version information

Examples:
  sprout stream c42 --user u1 --branch b1   # Run the concept pipeline for c42
  sprout locks --user u1                    # Lock table for every branch
  sprout serve --user u1                    # Renderer hub on server.addr
  sprout am show --format json              # Show effective configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")

		jsonLogs := false
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		logger.ComponentLogger("cli").Debugw("Logger initialized", "verbosity", logger.LevelName(verbosity))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")

	rootCmd.AddCommand(commands.StreamCmd)
	rootCmd.AddCommand(commands.LocksCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
