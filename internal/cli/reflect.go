package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/slopbot/internal/reflection"
	"github.com/spf13/cobra"
)

var (
	reflectScore  float64
	reflectTags   []string
	reflectLesson string
)

var reflectCmd = &cobra.Command{
	Use:   "reflect <episode-id> <title> <body>",
	Short: "Record a reflection about an episode",
	Long: `Record a reflection about an episode, optionally distilling a lesson
from it in the same invocation.

Examples:
  slopbot reflect ep-id "too verbose" "replies kept needing three chunks"
  slopbot reflect ep-id "too verbose" "..." --score 0.4 --tags verbosity
  slopbot reflect ep-id "too verbose" "..." --lesson "summarize long answers"`,
	Args: cobra.ExactArgs(3),
	RunE: runReflect,
}

var reflectThoughtCmd = &cobra.Command{
	Use:   "thought <message-id> <kind> <content>",
	Short: "Attach a thought node to a message in the graph",
	Args:  cobra.ExactArgs(3),
	RunE:  runReflectThought,
}

func init() {
	reflectCmd.Flags().Float64Var(&reflectScore, "score", 0, "quality score between 0 and 1")
	reflectCmd.Flags().StringSliceVar(&reflectTags, "tags", nil, "tags for the reflection")
	reflectCmd.Flags().StringVar(&reflectLesson, "lesson", "", "also record a lesson with this statement")

	reflectCmd.AddCommand(reflectThoughtCmd)
}

// getReflectionStore wires the dual store over both backends.
func getReflectionStore(ctx context.Context) (reflection.Store, error) {
	graph, err := getGraph(ctx)
	if err != nil {
		return nil, err
	}
	return reflection.NewDualStore(pgClient, graph), nil
}

func runReflect(cmd *cobra.Command, args []string) error {
	episodeID, title, body := args[0], args[1], args[2]
	ctx := context.Background()

	store, err := getReflectionStore(ctx)
	if err != nil {
		return err
	}

	r, err := store.RecordReflection(ctx, episodeID, title, body, reflectScore, reflectTags)
	if err != nil {
		return fmt.Errorf("record reflection: %w", err)
	}
	fmt.Printf("Recorded reflection %s.\n", r.ID)

	if reflectLesson != "" {
		l, err := store.RecordLesson(ctx, r.ID, reflectLesson)
		if err != nil {
			return fmt.Errorf("record lesson: %w", err)
		}
		fmt.Printf("Recorded lesson %s (%s).\n", l.ID, l.Status)
	}

	return nil
}

func runReflectThought(cmd *cobra.Command, args []string) error {
	messageID, kind, content := args[0], args[1], args[2]
	ctx := context.Background()

	store, err := getReflectionStore(ctx)
	if err != nil {
		return err
	}

	id, err := store.RecordThought(ctx, messageID, kind, content)
	if err != nil {
		return fmt.Errorf("record thought: %w", err)
	}
	fmt.Printf("Recorded thought %s.\n", id)
	return nil
}
