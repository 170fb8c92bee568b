package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var raw bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog with a natural-language query",
		Example: `  bookpile search "melancholy sci-fi about loneliness"
  bookpile search --limit 5 "accessible books on evolutionary biology"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			query := strings.Join(args, " ")

			if raw {
				matches, err := app.Searcher.SearchRaw(cmd.Context(), query, limit)
				if err != nil {
					return err
				}
				for _, m := range matches {
					fmt.Printf("%.4f  %s\n", m.Score, m.BookID)
				}
				return nil
			}

			results, err := app.Searcher.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}

			for i, result := range results {
				book := result.Book
				title := book.Title
				if book.Author != "" {
					title += " by " + book.Author
				}
				fmt.Printf("%d. %s  (%.2f)\n", i+1, title, result.Score)
				if book.Description != "" {
					fmt.Printf("   %s\n", truncate(book.Description, 200))
				}
				if len(result.SourceTitles) > 0 {
					fmt.Printf("   Recommended in: %s\n", strings.Join(result.SourceTitles, "; "))
				}
				if book.AmazonURL != "" {
					fmt.Printf("   %s\n", book.AmazonURL)
				}
				fmt.Printf("   id: %s  status: %s\n", book.ID, book.UserStatus)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw vector matches without catalog hydration")

	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return s[:cut] + "..."
}
