package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jchantrell/otadump/internal/database"
	"github.com/jchantrell/otadump/internal/dumper"
	"github.com/jchantrell/otadump/internal/source"
	"github.com/jchantrell/otadump/internal/utils"
)

// openSource opens path, reporting a missing local path with its own exit code.
func (a *app) openSource(path string) (source.Source, error) {
	if !utils.IsRemote(path) && !source.Exists(path) {
		return nil, &exitError{code: exitMissingPath, err: fmt.Errorf("%s does not exist", path)}
	}
	return source.Open(path, a.cfg.SourceOptions())
}

func (a *app) runDump(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	src, err := a.openSource(path)
	if err != nil {
		return err
	}
	defer src.Close()

	d := dumper.New(src, dumper.Options{
		ShowOperations: a.cfg.ShowOperations,
		PayloadName:    dumper.DefaultPayloadName,
		Progress:       !a.cfg.NoProgress,
	})

	if a.flags.savePayload != "" {
		if _, err := d.SavePayload(a.flags.savePayload); err != nil {
			return err
		}
	}

	res, err := d.Dump()
	if err != nil {
		return err
	}

	if a.cfg.Database != "" {
		db, err := database.NewDatabase(ctx, database.DefaultDatabaseOptions(a.cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if _, err := db.StoreDump(ctx, path, res); err != nil {
			return fmt.Errorf("storing manifest: %w", err)
		}
	}

	slog.Debug("Writing manifest", "partitions", len(res.Manifest.Partitions))
	return dumper.WriteJSON(a.stdout, res.Manifest)
}
