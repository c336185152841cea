package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent aggregation runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	if closeStore != nil {
		defer closeStore()
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date (UTC)\tRun ID\tProviders\tFailed\tRecords\tDuration")

	for _, run := range runs {
		failed := "-"
		if len(run.Failed) > 0 {
			failed = strings.Join(run.Failed, ",")
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\n",
			run.RunDate.UTC().Format("2006-01-02"),
			run.RunID,
			strings.Join(run.Providers, ","),
			failed,
			run.Records,
			run.Duration.Round(time.Millisecond),
		)
	}

	writer.Flush()
	return nil
}
