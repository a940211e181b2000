package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/registry"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <extractor-class>",
	Short: "List registered extractor versions",
	Long:  "Shows every registered version for an extractor class, newest first, with its quality snapshot and production flag.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := registry.NewStore(pool).List(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "versions")
		}

		if len(entries) == 0 {
			fmt.Fprintf(os.Stderr, "No versions registered for %s.\n", args[0])
			return nil
		}

		formatVersions(os.Stdout, entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}

func formatVersions(out io.Writer, entries []registry.VersionEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tPROD\tDEPLOYED\tSAMPLES\tAVG CONF\tSUCCESS\tCHANGELOG")
	_, _ = fmt.Fprintln(w, "-------\t----\t--------\t-------\t--------\t-------\t---------")

	for _, e := range entries {
		prod := ""
		if e.IsProduction {
			prod = "*"
		}

		samples, avgConf, success := "-", "-", "-"
		if e.Metrics != nil {
			samples = fmt.Sprintf("%d", e.Metrics.SampleSize)
			avgConf = fmt.Sprintf("%.3f", e.Metrics.AvgConfidence)
			success = fmt.Sprintf("%.1f%%", e.Metrics.SuccessRate*100)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Version,
			prod,
			e.DeployedAt.Format("2006-01-02"),
			samples,
			avgConf,
			success,
			truncate(e.Changelog, 50),
		)
	}
	_ = w.Flush()
}
