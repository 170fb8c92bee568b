package cmd

import (
	"context"
	"fmt"
	"strings"

	"bookpile/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <book-id> [new-status]",
		Short: "Show or set the reading status of a book",
		Long: `Shows the reading status of a book, or sets it when a new status is
given. The book id may be abbreviated to any unique prefix, as printed
by "bookpile list".

Status changes never touch the search index; a book stays searchable
whether you have read it or not.`,
		Example: `  bookpile status 3f2a91c4
  bookpile status 3f2a91c4 finished`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			book, err := findBook(cmd.Context(), app.Store, args[0])
			if err != nil {
				return err
			}

			if len(args) == 1 {
				fmt.Printf("%s: %s\n", book.Title, book.UserStatus)
				return nil
			}

			status := storage.UserStatus(args[1])
			if !storage.ValidUserStatus(status) {
				return fmt.Errorf("unknown status %q (valid: %s)", args[1], strings.Join(userStatusNames(), ", "))
			}
			if err := app.Store.UpdateUserStatus(cmd.Context(), book.ID, status); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", book.Title, status)
			return nil
		},
	}

	return cmd
}

// findBook resolves a full id or a unique id prefix to a book.
func findBook(ctx context.Context, store storage.Store, ref string) (*storage.Book, error) {
	if _, err := uuid.Parse(ref); err == nil {
		book, err := store.GetBook(ctx, ref)
		if err != nil {
			return nil, err
		}
		if book != nil {
			return book, nil
		}
	}

	books, err := store.ListBooks(ctx, "")
	if err != nil {
		return nil, err
	}

	var matches []*storage.Book
	for _, b := range books {
		if strings.HasPrefix(b.ID, ref) {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no book with id %q", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("id prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}
