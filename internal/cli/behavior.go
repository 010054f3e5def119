package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	behaviorSeverity    int
	behaviorDetector    string
	behaviorDescription string
	behaviorWindow      string
)

var behaviorCmd = &cobra.Command{
	Use:   "behavior <episode-id> <kind>",
	Short: "Record a behavior event for an episode",
	Long: `Record a behavior event for an episode. The event lands in Postgres
and is mirrored into the graph attached to its episode.

Examples:
  slopbot behavior ep-id overlong_response --severity 2 --detector rule
  slopbot behavior ep-id tool_fail --severity 3 --description "timeout"`,
	Args: cobra.ExactArgs(2),
	RunE: runBehavior,
}

var behaviorMetricCmd = &cobra.Command{
	Use:   "metric <name> <value>",
	Short: "Record a behavior metric sample for the configured agent",
	Long: `Record a behavior metric sample for the configured agent.

Examples:
  slopbot behavior metric avg_tokens 42.5
  slopbot behavior metric apology_rate 0.02 --window 7d`,
	Args: cobra.ExactArgs(2),
	RunE: runBehaviorMetric,
}

func init() {
	behaviorCmd.Flags().IntVar(&behaviorSeverity, "severity", 1, "event severity (1-5)")
	behaviorCmd.Flags().StringVar(&behaviorDetector, "detector", "manual", "what detected the event")
	behaviorCmd.Flags().StringVar(&behaviorDescription, "description", "", "free-form description")

	behaviorMetricCmd.Flags().StringVar(&behaviorWindow, "window", "episode", "aggregation window")

	behaviorCmd.AddCommand(behaviorMetricCmd)
}

func runBehavior(cmd *cobra.Command, args []string) error {
	episodeID, kind := args[0], args[1]
	ctx := context.Background()

	store, err := getReflectionStore(ctx)
	if err != nil {
		return err
	}

	ev, err := store.RecordBehaviorEvent(ctx, episodeID, kind, behaviorSeverity, behaviorDetector, behaviorDescription)
	if err != nil {
		return fmt.Errorf("record behavior event: %w", err)
	}
	fmt.Printf("Recorded behavior event %s.\n", ev.ID)
	return nil
}

func runBehaviorMetric(cmd *cobra.Command, args []string) error {
	name := args[0]
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parse value %q: %w", args[1], err)
	}
	ctx := context.Background()

	agent, err := pgClient.GetAgentByName(ctx, cfg.AgentName)
	if err != nil {
		return fmt.Errorf("look up agent %q: %w", cfg.AgentName, err)
	}

	store, err := getReflectionStore(ctx)
	if err != nil {
		return err
	}

	m, err := store.RecordMetric(ctx, agent.ID, name, value, behaviorWindow)
	if err != nil {
		return fmt.Errorf("record metric: %w", err)
	}
	fmt.Printf("Recorded metric %s=%g (%s) as sample %d.\n", name, value, behaviorWindow, m.ID)
	return nil
}
