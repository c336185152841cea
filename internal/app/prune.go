package app

import (
	"context"
	"errors"
	"time"

	"mtgprices/internal/archive"
)

// Prune deletes stored snapshots older than the retention window.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	manager := archive.NewManager(a.Config.Archive.RetentionMonths, a.Logger)
	cutoff := manager.Cutoff(time.Now().UTC())

	total, err := store.CountSnapshots(ctx)
	if err != nil {
		return err
	}

	if opts.DryRun {
		rows, err := store.ListSnapshotsSince(ctx, cutoff)
		if err != nil {
			return err
		}
		a.Logger.Info().
			Time("cutoff", cutoff).
			Int64("total", total).
			Int64("would_remove", total-int64(len(rows))).
			Msg("dry run; nothing deleted")
		return nil
	}

	deleted, err := store.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Time("cutoff", cutoff).
		Int64("deleted", deleted).
		Int64("kept", total-deleted).
		Msg("expired snapshots pruned")
	return nil
}
