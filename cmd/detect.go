package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ingest-cli/internal/fetcher"
	"github.com/sells-group/ingest-cli/internal/ingest"
	"github.com/sells-group/ingest-cli/internal/resilience"
	"github.com/sells-group/ingest-cli/internal/source"
	"github.com/sells-group/ingest-cli/internal/watermark"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Sweep registered sources for upstream changes",
	Long:  "Probes each due source partition against its stored watermark and reports what changed. Cursors only advance with --advance; a plain sweep is read-only.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		names, _ := cmd.Flags().GetStringSlice("sources")
		force, _ := cmd.Flags().GetBool("force")
		advance, _ := cmd.Flags().GetBool("advance")

		store, syncLog, cleanup, err := detectDeps(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		httpFetcher := newFetcher()
		detector := watermark.NewDetector(httpFetcher, fetchRetry(), cfg.Detect.VerifyFingerprint)

		var handler source.Handler
		if advance {
			// Acknowledge the change without downstream processing.
			handler = func(ctx context.Context, src source.Source, part source.Partition, det *watermark.Detection) (int64, error) {
				return 0, nil
			}
		}

		engine := source.NewEngine(store, detector, syncLog, source.NewRegistry(cfg.Detect.StartYear), handler)
		summary, err := engine.Run(ctx, source.RunOpts{Sources: names, Force: force})
		if err != nil {
			return err
		}

		for host, state := range httpFetcher.CircuitStates() {
			if state != resilience.StateClosed {
				zap.L().Warn("host circuit not closed after sweep",
					zap.String("host", host), zap.String("state", state.String()))
			}
		}

		fmt.Printf("sources=%d skipped=%d checked=%d changed=%d unchanged=%d no-data=%d failed=%d\n",
			summary.Sources, summary.Skipped, summary.Checked, summary.Changed,
			summary.Unchanged, summary.NoData, summary.Failed)
		return nil
	},
}

func init() {
	detectCmd.Flags().StringSlice("sources", nil, "restrict the sweep to specific source names")
	detectCmd.Flags().Bool("force", false, "ignore per-source cadence and probe everything")
	detectCmd.Flags().Bool("advance", false, "advance cursors for changed partitions")
	rootCmd.AddCommand(detectCmd)
}

// detectDeps opens the watermark store plus, on Postgres, the shared sync
// log. SQLite runs without an audit trail.
func detectDeps(ctx context.Context) (watermark.Store, *ingest.SyncLog, func(), error) {
	if cfg.Store.Driver == "sqlite" {
		st, err := watermark.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, nil, func() { _ = st.Close() }, nil
	}

	pool, err := ingestPool(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	st := watermark.NewPostgres(pool, pool.Close)
	return st, ingest.NewSyncLog(pool), pool.Close, nil
}

func newFetcher() *fetcher.HTTPFetcher {
	limiters := fetcher.DefaultRateLimiters()
	if cfg.Fetch.RatePerSec > 0 {
		for host := range limiters {
			limiters[host] = rate.NewLimiter(rate.Limit(cfg.Fetch.RatePerSec), 1)
		}
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:               cfg.Fetch.UserAgent,
		Timeout:                 time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:              cfg.Fetch.MaxRetries,
		RateLimiters:            limiters,
		CircuitFailureThreshold: cfg.Fetch.CircuitFailureThreshold,
		CircuitResetSecs:        cfg.Fetch.CircuitResetSecs,
	})
}

func fetchRetry() resilience.RetryConfig {
	rc := resilience.FromRetryConfig(cfg.Fetch.MaxRetries, 0, 0, 0, -1)
	rc.OnRetry = resilience.RetryLogger("sec_gov", "probe")
	return rc
}
