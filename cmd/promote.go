package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/quality"
	"github.com/sells-group/ingest-cli/internal/registry"
)

var promoteCmd = &cobra.Command{
	Use:   "promote <extractor-class> <version>",
	Short: "Promote a registered version to production",
	Long:  "Marks the given version as the production extractor for its class, demoting the current one. With --gate, the promotion is refused when the candidate's stored metrics regress against production.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		class, version := args[0], args[1]

		gate, _ := cmd.Flags().GetBool("gate")

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		reg := registry.NewStore(pool)

		if gate {
			if err := checkPromotionGate(ctx, reg, class, version); err != nil {
				return err
			}
		}

		if err := reg.Promote(ctx, class, version); err != nil {
			return err
		}

		fmt.Printf("%s %s is now production\n", class, version)
		return nil
	},
}

// checkPromotionGate compares the candidate's stored metrics against the
// current production version and refuses on a regression verdict.
func checkPromotionGate(ctx context.Context, reg *registry.Store, class, version string) error {
	candidate, err := reg.Get(ctx, class, version)
	if err != nil {
		return err
	}
	if candidate.Metrics == nil {
		return eris.Errorf("promote: %s %s has no quality metrics; rerun without --gate to force", class, version)
	}

	prod, err := reg.Production(ctx, class)
	if err != nil {
		if eris.Is(err, registry.ErrNotFound) {
			return nil // nothing to compare against
		}
		return err
	}
	if prod.Metrics == nil || prod.Version == version {
		return nil
	}

	report := quality.Compare(prod.Version, version, *prod.Metrics, *candidate.Metrics, quality.Thresholds{
		Regression:  cfg.Quality.RegressionThreshold,
		Improvement: cfg.Quality.ImprovementThreshold,
	})
	if report.Recommendation == quality.ReviewRequired {
		return eris.Errorf("promote: %s %s regresses against %s on %v; review required",
			class, version, prod.Version, report.Regressions)
	}

	return nil
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <extractor-class> <version>",
	Short: "Roll production back to an earlier version",
	Long:  "Re-promotes a previously registered version. Identical mechanics to promote but recorded as a rollback in the audit trail.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := registry.NewStore(pool).Rollback(ctx, args[0], args[1]); err != nil {
			return err
		}

		fmt.Printf("%s rolled back to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	promoteCmd.Flags().Bool("gate", false, "refuse promotion when stored metrics regress against production")
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(rollbackCmd)
}
