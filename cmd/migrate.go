package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/ingest"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ingest schema migrations",
	Long:  "Creates or updates the ingest.* Postgres tables. Safe to run repeatedly; migrations are applied under an advisory lock.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := ingest.Migrate(ctx, pool); err != nil {
			return err
		}

		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
