package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/watermark"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-partition watermarks",
	Long:  "Displays the stored cursor, probe metadata, and last run outcome for each source partition.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sourceID, _ := cmd.Flags().GetString("source")

		st, err := openWatermarks(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		marks, err := st.List(ctx, sourceID)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(marks) == 0 {
			fmt.Fprintln(os.Stderr, "No watermarks yet. Run 'detect --advance' to start tracking sources.")
			return nil
		}

		formatWatermarks(os.Stdout, marks)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("source", "", "restrict to one source")
	rootCmd.AddCommand(statusCmd)
}

func formatWatermarks(out io.Writer, marks []watermark.Watermark) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tPARTITION\tSTATUS\tCURSOR\tSIZE\tUPDATED\tERROR")
	_, _ = fmt.Fprintln(w, "------\t---------\t------\t------\t----\t-------\t-----")

	for _, m := range marks {
		size := "-"
		if m.ProbeSize != nil {
			size = fmt.Sprintf("%d", *m.ProbeSize)
		}

		errMsg := ""
		if m.LastError != "" {
			errMsg = truncate(m.LastError, 50)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.SourceID,
			m.PartitionKey,
			m.LastRunStatus,
			truncate(m.Cursor, 16),
			size,
			m.UpdatedAt.Format("2006-01-02 15:04"),
			errMsg,
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
