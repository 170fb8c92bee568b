package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Repair the search index against the catalog",
		Long: `Compares the search index with the catalog and repairs every drift:
books missing from the index or indexed at a stale content version are
re-embedded, and index records for deleted books are removed.

Run this after an interrupted ingest, or any time search results look
out of date.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Indexer.Sync(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Reindex complete: %d re-embedded, %d orphaned records removed, %d failed\n",
				report.Indexed, report.Removed, report.Failed)
			return nil
		},
	}

	return cmd
}
