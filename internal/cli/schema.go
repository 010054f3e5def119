package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var initSchemaCmd = &cobra.Command{
	Use:   "init-schema",
	Short: "Create all Postgres tables and indexes",
	Long: `Create all Postgres tables and indexes if they do not exist yet.

The graph store is schemaless and needs no setup. Running this against an
already-initialized database is a no-op.`,
	RunE: runInitSchema,
}

func runInitSchema(cmd *cobra.Command, args []string) error {
	// The root pre-run already applied the schema to connect; run it once
	// more explicitly so a failure surfaces here rather than silently.
	if err := pgClient.InitSchema(context.Background()); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	fmt.Println("Schema initialized.")
	return nil
}
