package cmd

import (
	"fmt"
	"strings"

	"bookpile/internal/storage"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var status string
	var filter string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books in the catalog",
		Example: `  bookpile list
  bookpile list --status reading
  bookpile list --filter heller --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !storage.ValidUserStatus(storage.UserStatus(status)) {
				return fmt.Errorf("unknown status %q (valid: %s)", status, strings.Join(userStatusNames(), ", "))
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			books, err := app.Store.ListBooks(cmd.Context(), storage.UserStatus(status))
			if err != nil {
				return err
			}

			shown := 0
			for _, book := range books {
				if filter != "" && !matchesFilter(book, filter) {
					continue
				}
				if limit > 0 && shown == limit {
					break
				}
				count, err := app.Store.MentionCount(cmd.Context(), book.ID)
				if err != nil {
					return err
				}
				line := book.Title
				if book.Author != "" {
					line += " by " + book.Author
				}
				fmt.Printf("%-10s  %-9s  %2dx  %s\n", book.ID[:8], book.UserStatus, count, line)
				shown++
			}

			if shown == 0 {
				fmt.Println("No books.")
				return nil
			}
			fmt.Printf("\n%d books\n", shown)
			return nil
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by reading status")
	cmd.Flags().StringVar(&filter, "filter", "", "Show only books whose title or author contains this text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of books to show (0 = all)")

	return cmd
}

func matchesFilter(book *storage.Book, filter string) bool {
	filter = strings.ToLower(filter)
	return strings.Contains(strings.ToLower(book.Title), filter) ||
		strings.Contains(strings.ToLower(book.Author), filter)
}

func userStatusNames() []string {
	names := make([]string, len(storage.ValidUserStatuses))
	for i, s := range storage.ValidUserStatuses {
		names[i] = string(s)
	}
	return names
}
