package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ingest-cli/internal/dimension"
)

// mergeSpec is the YAML shape accepted by --spec. It pins the dimension
// name and tracked attribute list in a reviewable file instead of flags.
type mergeSpec struct {
	Dimension string   `yaml:"dimension"`
	Tracked   []string `yaml:"tracked"`
}

var mergeCmd = &cobra.Command{
	Use:   "merge <snapshot.jsonl>",
	Short: "Merge a dimension snapshot with full history",
	Long:  "Reads a JSONL snapshot and merges each record into the dimension table, closing out superseded rows and keeping exactly one current row per key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dim, _ := cmd.Flags().GetString("dimension")
		tracked, _ := cmd.Flags().GetStringSlice("tracked")
		specPath, _ := cmd.Flags().GetString("spec")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		if specPath != "" {
			spec, err := loadMergeSpec(specPath)
			if err != nil {
				return err
			}
			dim = spec.Dimension
			tracked = spec.Tracked
		}
		if dim == "" {
			return eris.New("merge: --dimension or --spec is required")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "merge: open snapshot")
		}
		defer f.Close() //nolint:errcheck

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		summary, err := dimension.NewMerger(pool, dim).MergeStream(ctx, f, tracked, concurrency)
		if err != nil {
			return err
		}

		fmt.Printf("inserted=%d updated=%d unchanged=%d failed=%d\n",
			summary.Inserted, summary.Updated, summary.Unchanged, summary.Failed)
		return nil
	},
}

func init() {
	mergeCmd.Flags().String("dimension", "", "dimension name (target of the merge)")
	mergeCmd.Flags().StringSlice("tracked", nil, "attributes whose changes open a new history row")
	mergeCmd.Flags().String("spec", "", "YAML file with dimension and tracked attributes")
	mergeCmd.Flags().Int("concurrency", 4, "merge worker count")
	rootCmd.AddCommand(mergeCmd)
}

func loadMergeSpec(path string) (*mergeSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "merge: read spec")
	}
	var spec mergeSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, eris.Wrap(err, "merge: parse spec")
	}
	if spec.Dimension == "" {
		return nil, eris.New("merge: spec missing dimension")
	}
	return &spec, nil
}
