package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/slopbot/internal/pg"
	"github.com/spf13/cobra"
)

var historyGraph bool

var historyCmd = &cobra.Command{
	Use:   "history <channel-id>",
	Short: "Show the open episode's conversation for a channel",
	Long: `Show the open episode's conversation for a Discord channel.

Messages come from Postgres in insertion order. With --graph the chain of
NEXT edges is read from the graph store as well, so divergence between
the two stores is visible.

Examples:
  slopbot history 123456789012345678
  slopbot history 123456789012345678 --graph`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyGraph, "graph", false, "also show the NEXT chain from the graph store")
}

func runHistory(cmd *cobra.Command, args []string) error {
	channelID := args[0]
	ctx := context.Background()

	ep, err := pgClient.GetOpenEpisodeByChannel(ctx, channelID)
	if errors.Is(err, pg.ErrNotFound) {
		fmt.Println("No open episode for this channel.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up episode: %w", err)
	}

	msgs, err := pgClient.ListEpisodeMessages(ctx, ep.ID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	fmt.Printf("Episode %s (%s, started %s)\n\n", ep.ID, ep.Kind, ep.StartedAt.Format("2006-01-02 15:04:05"))
	for _, msg := range msgs {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		if verbose {
			fmt.Printf("  id=%s tokens=%d\n", msg.ID, msg.TokenCount)
		}
	}

	if !historyGraph {
		return nil
	}

	graph, err := getGraph(ctx)
	if err != nil {
		return err
	}
	chain, err := graph.NextChain(ctx, ep.ID)
	if err != nil {
		return fmt.Errorf("read graph chain: %w", err)
	}

	fmt.Printf("\nGraph NEXT chain (%d of %d messages):\n", len(chain), len(msgs))
	byID := make(map[string]string, len(msgs))
	for _, msg := range msgs {
		byID[msg.ID] = string(msg.Role)
	}
	for i, id := range chain {
		role, ok := byID[id]
		if !ok {
			role = "NOT IN POSTGRES"
		}
		fmt.Printf("%d. %s [%s]\n", i+1, id, role)
	}
	if len(chain) != len(msgs) {
		fmt.Println("\nWarning: stores have diverged; the reconciler should catch up shortly.")
	}

	return nil
}

var closeCmd = &cobra.Command{
	Use:   "close <channel-id>",
	Short: "Close the open episode for a channel",
	Long: `Close the open episode for a Discord channel.

The next message in the channel starts a fresh episode with its own
message chain.`,
	Args: cobra.ExactArgs(1),
	RunE: runClose,
}

func runClose(cmd *cobra.Command, args []string) error {
	channelID := args[0]
	ctx := context.Background()

	ep, err := pgClient.GetOpenEpisodeByChannel(ctx, channelID)
	if errors.Is(err, pg.ErrNotFound) {
		fmt.Println("No open episode for this channel.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up episode: %w", err)
	}

	if err := pgClient.CloseEpisode(ctx, ep.ID); err != nil {
		return fmt.Errorf("close episode: %w", err)
	}
	fmt.Printf("Closed episode %s.\n", ep.ID)
	return nil
}
