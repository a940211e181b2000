package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/extractor"
	"github.com/sells-group/ingest-cli/internal/ingest"
	"github.com/sells-group/ingest-cli/internal/quality"
	"github.com/sells-group/ingest-cli/internal/registry"
	"github.com/sells-group/ingest-cli/internal/reprocess"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-extract stored raw documents with a new extractor version",
	Long:  "Runs the extraction service over every stored raw document in scope, writes artifacts, scores the batch, and registers the version with its quality snapshot. Never promotes; use 'promote' once the comparison looks good.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		class, _ := cmd.Flags().GetString("class")
		version, _ := cmd.Flags().GetString("version")
		category, _ := cmd.Flags().GetString("category")
		yearFrom, _ := cmd.Flags().GetInt("from")
		yearTo, _ := cmd.Flags().GetInt("to")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		client := extractor.NewClient(cfg.Extractor.BaseURL,
			time.Duration(cfg.Extractor.TimeoutSecs)*time.Second)

		orch := reprocess.NewOrchestrator(
			reprocess.NewPostgresRawStore(pool),
			client,
			reprocess.NewArtifactStore(pool),
			registry.NewStore(pool),
			ingest.NewSyncLog(pool),
			quality.Thresholds{
				Regression:  cfg.Quality.RegressionThreshold,
				Improvement: cfg.Quality.ImprovementThreshold,
			},
		)

		result, err := orch.Reprocess(ctx, class, version, category, yearFrom, yearTo, reprocess.Options{
			Overwrite:   overwrite,
			DryRun:      dryRun,
			BatchSize:   cfg.Reprocess.BatchSize,
			Concurrency: cfg.Reprocess.Concurrency,
		})
		if err != nil {
			return err
		}

		printRunResult(result)
		return nil
	},
}

func init() {
	reprocessCmd.Flags().String("class", "", "extractor class to run")
	reprocessCmd.Flags().String("version", "", "extractor version to run")
	reprocessCmd.Flags().String("category", "", "filing category scope")
	reprocessCmd.Flags().Int("from", 0, "first filing year in scope")
	reprocessCmd.Flags().Int("to", 0, "last filing year in scope")
	reprocessCmd.Flags().Bool("overwrite", false, "re-extract documents that already have artifacts at this version")
	reprocessCmd.Flags().Bool("dry-run", false, "enumerate candidates without extracting anything")
	_ = reprocessCmd.MarkFlagRequired("class")
	_ = reprocessCmd.MarkFlagRequired("version")
	_ = reprocessCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(reprocessCmd)
}

func printRunResult(r *reprocess.RunResult) {
	if r.DryRun {
		fmt.Printf("dry run %s: %d candidates in %s %d-%d\n",
			r.RunID, r.Candidates, r.Category, r.YearFrom, r.YearTo)
		return
	}

	fmt.Printf("run %s: candidates=%d processed=%d skipped=%d succeeded=%d failed=%d in %s\n",
		r.RunID, r.Candidates, r.Processed, r.Skipped, r.Succeeded, r.Failed,
		r.CompletedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Printf("quality: samples=%d avg-confidence=%.3f success-rate=%.1f%%\n",
		r.Metrics.SampleSize, r.Metrics.AvgConfidence, r.Metrics.SuccessRate*100)

	if r.Cancelled {
		fmt.Fprintln(os.Stderr, "run was cancelled; snapshot covers completed work only")
	}
	if r.BaselineAbsent {
		fmt.Println("no production baseline to compare against")
	}
	if r.Comparison != nil {
		fmt.Printf("vs %s: %s", r.Comparison.BaselineVersion, r.Comparison.Recommendation)
		if len(r.Comparison.Regressions) > 0 {
			fmt.Printf(" (regressions: %v)", r.Comparison.Regressions)
		}
		fmt.Println()
	}
}
