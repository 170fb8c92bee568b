package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List ingested sources and their processing state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			sources, err := app.Store.ListSources(cmd.Context())
			if err != nil {
				return err
			}

			if len(sources) == 0 {
				fmt.Println("No sources.")
				return nil
			}

			for _, source := range sources {
				books, err := app.Store.ListBooksForSource(cmd.Context(), source.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s  %-11s  %3d books  %s\n", source.ID, source.Status, len(books), source.Title)
				if source.URL != "" {
					fmt.Printf("              %s\n", source.URL)
				}
			}
			return nil
		},
	}

	return cmd
}
