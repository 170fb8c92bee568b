package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "remove-source <source-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a source and everything only it contributed",
		Long: `Removes a source along with its mentions. Books whose only mentions came
from this source are deleted from the catalog and the search index; books
also mentioned elsewhere are kept.`,
		Example: `  bookpile remove-source abc123 --yes`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			source, err := app.Store.GetSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if source == nil {
				return fmt.Errorf("source %s not found", args[0])
			}

			if !yes {
				fmt.Printf("Remove %q and all books only it mentions? [y/N] ", source.Title)
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			report, err := app.Pipeline.RemoveSource(cmd.Context(), source.ID)
			if err != nil {
				return err
			}

			fmt.Printf("Removed source %s: %d mentions deleted, %d books removed, %d books kept\n",
				source.ID, report.MentionsDeleted, report.BooksDeleted, report.BooksKept)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
