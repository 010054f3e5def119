// Package cli provides the command-line interface for slopbot.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/slopbot/internal/config"
	"github.com/raphaelgruber/slopbot/internal/graphstore"
	"github.com/raphaelgruber/slopbot/internal/pg"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and store clients
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	pgClient   *pg.Client

	// Lazy-initialized graph client; only daemon and graph-touching
	// commands pay the connection cost.
	graphClient *graphstore.Store
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "slopbot",
	Short: "Discord chat agent with dual-store conversation memory",
	Long: `Slopbot is a Discord chat agent that remembers its conversations.

Every turn is written to Postgres (the source of truth) and mirrored into
a Bolt property graph (Memgraph or Neo4j) as an episode of chained
messages. A background reconciler replays graph writes that failed, so
the two stores converge.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip store connections for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		if cfg.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is missing from environment variables")
		}

		ctx := context.Background()
		var err error
		pgClient, err = pg.NewClient(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}

		// Idempotent; every command sees the full schema.
		if err := pgClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if graphClient != nil {
			if err := graphClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close graph connection: %v\n", err)
			}
		}
		if pgClient != nil {
			pgClient.Close()
		}
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// getGraph connects to the graph store on first use.
func getGraph(ctx context.Context) (*graphstore.Store, error) {
	if graphClient == nil {
		var err error
		graphClient, err = graphstore.New(ctx, cfg.GraphURL, cfg.GraphUser, cfg.GraphPass, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to graph store: %w", err)
		}
	}
	return graphClient, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initSchemaCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reflectCmd)
	rootCmd.AddCommand(behaviorCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the slopbot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("slopbot %s\n", Version)
	},
}
