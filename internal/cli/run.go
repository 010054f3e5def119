package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/raphaelgruber/slopbot/internal/bot"
	"github.com/raphaelgruber/slopbot/internal/llm"
	"github.com/raphaelgruber/slopbot/internal/memory"
	"github.com/raphaelgruber/slopbot/internal/metrics"
	"github.com/spf13/cobra"
)

var runWipe bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Discord bot",
	Long: `Run the Discord bot daemon.

Connects to Postgres and the graph store, resolves the agent identity,
opens the Discord gateway session and starts the outbox reconciler.
Stops cleanly on SIGINT/SIGTERM.

Examples:
  slopbot run
  slopbot run --wipe   # wipe all stored data first (testing only)`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runWipe, "wipe", false, "wipe all data from both stores on startup (testing only)")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	graph, err := getGraph(ctx)
	if err != nil {
		return err
	}

	if runWipe {
		if err := pgClient.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe postgres: %w", err)
		}
		if err := graph.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe graph: %w", err)
		}
		logger.Warn("wiped all data from both stores")
	}

	collector := metrics.NewCollector()
	mem := memory.NewManager(pgClient, graph, logger, collector)

	// Identity must exist in both stores before any turn is handled.
	if _, err := mem.ResolveAgent(ctx, cfg.AgentName); err != nil {
		return err
	}

	reconciler := memory.NewReconciler(pgClient, graph, logger, collector)
	// Drain whatever a previous process left behind before going live.
	if n, err := reconciler.RunOnce(ctx); err != nil {
		logger.Warn("startup outbox drain incomplete", "replayed", n, "error", err)
	} else if n > 0 {
		logger.Info("drained outbox backlog", "replayed", n)
	}
	go reconciler.Run(ctx)

	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	logger.Info("model ready", "provider", cfg.LLMProvider, "model", model.Model())

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}

	b := bot.New(ctx, session, mem, model, logger, collector)
	if err := b.Start(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	logger.Info("bot running", "agent", cfg.AgentName)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := b.Stop(); err != nil {
		logger.Error("failed to close discord session", "error", err)
	}

	snap := collector.Snapshot()
	logger.Info("runtime stats", "uptime_seconds", snap.UptimeSeconds)
	if snap.LLMGenerate != nil {
		logger.Info("llm stats",
			"calls", snap.LLMGenerate.Count,
			"avg_ms", snap.LLMGenerate.AvgTimeMs,
			"input_tokens", snap.LLMGenerate.TotalInputTokens,
			"output_tokens", snap.LLMGenerate.TotalOutputTokens)
	}
	if snap.PGWrite != nil {
		logger.Info("postgres stats", "writes", snap.PGWrite.Count, "avg_ms", snap.PGWrite.AvgTimeMs)
	}
	if snap.GraphWrite != nil {
		logger.Info("graph stats", "writes", snap.GraphWrite.Count, "avg_ms", snap.GraphWrite.AvgTimeMs)
	}

	return nil
}
