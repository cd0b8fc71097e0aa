package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/wafflemaker/internal/app"
	"github.com/cuemby/wafflemaker/pkg/config"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level error to the process exit status documented
// in §6: 0 clean shutdown, 1 config error, 2 unrecoverable runtime error.
func exitCodeFor(err error) int {
	if _, ok := err.(*configError); ok {
		return 1
	}
	return 2
}

type configError struct{ error }

var configPath string

var rootCmd = &cobra.Command{
	Use:     "wafflemaker",
	Short:   "WaffleMaker reconciles a small fleet of services against their declared specs",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("wafflemaker %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/wafflemaker/config.yaml", "path to the daemon config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(planCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation daemon: webhooks, worker pool, lease manager, DNS, management API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return &configError{fmt.Errorf("load config: %w", err)}
		}

		a, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return a.Run(ctx)
	},
}

// planCmd is a supplemented feature (not present in the original spec):
// a dry-run planner that prints the jobs a given commit transition would
// enqueue, without touching the queue, registry, or any live component.
var planCmd = &cobra.Command{
	Use:   "plan --from COMMIT",
	Short: "Print the jobs a commit range would enqueue, without running them",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")

		cfg, err := config.Load(configPath)
		if err != nil {
			return &configError{fmt.Errorf("load config: %w", err)}
		}

		return runPlan(cfg, from)
	},
}

func init() {
	planCmd.Flags().String("from", "", "commit to diff from (empty diffs the whole tree)")
}
