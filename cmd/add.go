package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "add <url-or-file>...",
		Short: "Ingest discussion threads and extract book mentions",
		Long: `Fetches each thread (Reddit URL or local JSON file), extracts book
mentions from its comments, merges them into the catalog, enriches new
books with bibliographic metadata, and updates the search index.

Re-adding an already processed thread is a no-op unless --force is given,
in which case its mentions are re-derived from scratch.`,
		Example: `  # Ingest a Reddit thread
  bookpile add https://www.reddit.com/r/books/comments/abc123/whats_a_book_that_changed_your_life/

  # Ingest a saved thread and re-process one already in the catalog
  bookpile add saved-thread.json --force`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			for _, ref := range args {
				thread, err := app.Adapter.Load(cmd.Context(), ref)
				if err != nil {
					return fmt.Errorf("loading %s: %w", ref, err)
				}

				report, err := app.Pipeline.IngestThread(cmd.Context(), thread, force)
				if err != nil {
					return fmt.Errorf("ingesting %s: %w", ref, err)
				}

				if report.Skipped {
					fmt.Printf("%s: already processed, skipping (use --force to re-process)\n", report.SourceTitle)
					continue
				}

				fmt.Printf("%s\n", report.SourceTitle)
				fmt.Printf("  comments: %d (%d failed)\n", report.Comments, report.FailedComments)
				fmt.Printf("  mentions: %d found, %d invalid, %d recorded\n",
					report.MentionsFound, report.InvalidCandidates, report.MentionsRecorded)
				fmt.Printf("  books: %d new, %d matched existing\n",
					report.BooksCreated, report.DuplicatesMatched)
				if report.EnrichmentFailures > 0 {
					fmt.Printf("  enrichment: %d books without metadata (searchable by title/author only)\n",
						report.EnrichmentFailures)
				}
				fmt.Printf("  indexed: %d\n", report.Indexed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-process sources that were already processed")

	return cmd
}
