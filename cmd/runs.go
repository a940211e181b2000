package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/ingest"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the operation audit trail",
	Long:  "Lists detection sweeps and reprocessing runs from the sync log, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := ingest.NewSyncLog(pool).ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "runs")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded yet.")
			return nil
		}

		formatRunEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func formatRunEntries(out io.Writer, entries []ingest.SyncEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tOPERATION\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		errMsg := ""
		if e.Error != "" {
			errMsg = truncate(e.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.Operation,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsSynced,
			errMsg,
		)
	}
	_ = w.Flush()
}
