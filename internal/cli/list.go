package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/engine"
	"github.com/roach88/herdsync/internal/record"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the herd: pending records first, then synced ones",
		Long: `Show every known animal. Pending records come first in the order they
were added, then the cached registry snapshot. A pending record hides the
synced record with the same animal number.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rootOpts)
		},
	}
}

type listOutput struct {
	Items         []engine.Item `json:"items"`
	Pending       int           `json:"pending"`
	LastRefreshed string        `json:"last_refreshed,omitempty"`
}

func runList(cmd *cobra.Command, opts *RootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	res := listOutput{
		Items:   a.assembler.View(ctx),
		Pending: a.pending.Count(ctx),
	}
	if t, ok := a.cache.LastRefreshed(ctx); ok {
		res.LastRefreshed = record.FormatTimestamp(t)
	}

	return a.out.Render("", res, func(w io.Writer) error {
		if err := writeItems(w, res.Items); err != nil {
			return err
		}
		refreshed := "never"
		if res.LastRefreshed != "" {
			refreshed = res.LastRefreshed
		}
		fmt.Fprintf(w, "\n%d records, %d pending, cache refreshed %s\n", len(res.Items), res.Pending, refreshed)
		return nil
	})
}

func writeItems(w io.Writer, items []engine.Item) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tID\tANIMAL\tMOTHER\tFATHER\tBIRTH\tWEIGHT\tGENDER\tSTATUS\tCREATED")
	for _, it := range items {
		id := strconv.FormatInt(it.ID, 10)
		if it.Source == engine.SourcePending {
			id = "local:" + strconv.FormatInt(it.LocalID, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Source, id, it.AnimalNumber,
			dash(it.MotherNumber), dash(it.FatherNumber), dash(it.BirthDate),
			formatWeight(it.Weight), dash(string(it.Gender)), dash(string(it.Status)),
			it.CreatedAt)
	}
	return tw.Flush()
}

func formatWeight(w *float64) string {
	if w == nil {
		return "-"
	}
	return strconv.FormatFloat(*w, 'f', -1, 64)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
