package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jchantrell/otadump/internal/zipfile"
)

func (a *app) newEntriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entries <path-or-url>",
		Short: "List the entries of an OTA zip",
		Long: `Entries lists every readable entry of a ZIP container with its compression
method, sizes and the absolute offset of its data. Entries whose local header
cannot be read are skipped with a warning.`,
		Args:          exactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          a.runEntries,
	}
}

func (a *app) runEntries(cmd *cobra.Command, args []string) error {
	src, err := a.openSource(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	zr, err := zipfile.NewReader(src)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMETHOD\tOFFSET\tCOMPRESSED\tSIZE")

	it := zr.Entries()
	for it.Next() {
		e := it.Entry()
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			e.Name(), e.Method(), e.DataOffset(), e.CompressedSize(), e.UncompressedSize())
	}
	if err := it.Err(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing entries: %w", err)
	}

	if skipped := it.Skipped(); skipped > 0 {
		slog.Warn("Some entries were skipped", "skipped", skipped, "records", len(zr.Records()))
	}
	return nil
}
