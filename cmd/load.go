package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/reprocess"
)

var loadCmd = &cobra.Command{
	Use:   "load <dir>",
	Short: "Load acquired raw documents into the document index",
	Long:  "Bulk-loads every file in a directory into ingest.raw_documents via COPY, using the filename (without extension) as the document id. Reprocessing runs draw from this index.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		category, _ := cmd.Flags().GetString("category")
		year, _ := cmd.Flags().GetInt("year")

		docs, err := readDocumentsDir(args[0], category, year)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No files to load.")
			return nil
		}

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := reprocess.NewPostgresRawStore(pool).StoreBatch(ctx, docs)
		if err != nil {
			return err
		}

		fmt.Printf("loaded %d documents into %s/%d\n", n, category, year)
		return nil
	},
}

func init() {
	loadCmd.Flags().String("category", "", "filing category for every loaded document")
	loadCmd.Flags().Int("year", 0, "filing year for every loaded document")
	_ = loadCmd.MarkFlagRequired("category")
	_ = loadCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(loadCmd)
}

func readDocumentsDir(dir, category string, year int) ([]reprocess.RawDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "load: read dir %s", dir)
	}

	var docs []reprocess.RawDocument
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "load: read %s", entry.Name())
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		docs = append(docs, reprocess.RawDocument{
			DocumentID:     id,
			FilingCategory: category,
			FilingYear:     year,
			Content:        content,
		})
	}
	return docs, nil
}
