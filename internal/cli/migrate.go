package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Convert a legacy single-table store",
		Long: `Split records kept under the legacy "animals" key into the pending queue
and the server cache, then remove the legacy key.

Every command performs this step when it opens the database; migrate only
reports what was done. Running it again is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.migration
			return a.out.Render("", rep, func(w io.Writer) error {
				if rep.Skipped {
					fmt.Fprintln(w, "No legacy data")
					return nil
				}
				fmt.Fprintf(w, "Migrated %d pending and %d synced records\n", rep.Pending, rep.Cached)
				return nil
			})
		},
	}
}
