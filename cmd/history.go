package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/dimension"
)

var historyCmd = &cobra.Command{
	Use:   "history <dimension> <natural-key>",
	Short: "Show the full version history of a dimension record",
	Long:  "Lists every version of the record, oldest first, with its validity window. --current restricts to the open version.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dim, key := args[0], args[1]

		currentOnly, _ := cmd.Flags().GetBool("current")
		asJSON, _ := cmd.Flags().GetBool("json")

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		m := dimension.NewMerger(pool, dim)

		var records []dimension.Record
		if currentOnly {
			rec, err := m.Current(ctx, key)
			if err != nil {
				return eris.Wrap(err, "history")
			}
			records = []dimension.Record{*rec}
		} else {
			records, err = m.History(ctx, key)
			if err != nil {
				return eris.Wrap(err, "history")
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		formatHistory(os.Stdout, records)
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("current", false, "show only the current version")
	historyCmd.Flags().Bool("json", false, "emit records as JSON")
	rootCmd.AddCommand(historyCmd)
}

func formatHistory(out io.Writer, records []dimension.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tCURRENT\tFROM\tTO\tATTRS")
	_, _ = fmt.Fprintln(w, "-------\t-------\t----\t--\t-----")

	for _, r := range records {
		current := ""
		if r.IsCurrent {
			current = "*"
		}
		to := "-"
		if r.EffectiveTo != nil {
			to = r.EffectiveTo.Format("2006-01-02")
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
			r.Version,
			current,
			r.EffectiveFrom.Format("2006-01-02"),
			to,
			len(r.Attributes),
		)
	}
	_ = w.Flush()
}
