package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/mea-sync/internal/db"
	"github.com/banshee-data/mea-sync/internal/monitoring"
)

// listRunsLimit caps -list-runs output.
const listRunsLimit = 20

// ledgerCommand runs whichever of -migrate, -list-runs and -show-run was
// given against the open ledger.
func ledgerCommand(ctx context.Context, ledger *db.DB, opts options, stdout io.Writer) int {
	switch {
	case opts.migrate != "":
		return migrateCommand(ledger, opts.migrate, stdout)
	case opts.listRuns:
		return listRuns(ctx, ledger, stdout)
	default:
		return showRun(ctx, ledger, opts.showRun, stdout)
	}
}

func migrateCommand(ledger *db.DB, action string, stdout io.Writer) int {
	switch action {
	case "up":
		if err := ledger.MigrateUp(); err != nil {
			monitoring.Errorf("%v", err)
			return 1
		}
	case "down":
		if err := ledger.MigrateDown(); err != nil {
			monitoring.Errorf("%v", err)
			return 1
		}
	case "status":
	default:
		monitoring.Errorf("Unknown migrate action %q (want up, down or status)", action)
		return 2
	}

	version, dirty, err := ledger.MigrateVersion()
	if err != nil {
		monitoring.Errorf("Failed to get migration status: %v", err)
		return 1
	}
	fmt.Fprintf(stdout, "schema version %d (dirty: %v)\n", version, dirty)
	return 0
}

func listRuns(ctx context.Context, ledger *db.DB, stdout io.Writer) int {
	runs, err := ledger.ListRuns(ctx, listRunsLimit)
	if err != nil {
		monitoring.Errorf("%v", err)
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tFINISHED\tPROCESSED\tFAILED\tCANCELLED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%v\n",
			r.ID, r.StartedAt.Format(time.RFC3339), finishedAt(r.FinishedAt), r.Processed, r.Failed, r.Cancelled)
	}
	tw.Flush()
	return 0
}

func showRun(ctx context.Context, ledger *db.DB, runID string, stdout io.Writer) int {
	run, err := ledger.GetRun(ctx, runID)
	if err != nil {
		monitoring.Errorf("%v", err)
		return 1
	}
	files, err := ledger.ListFiles(ctx, runID)
	if err != nil {
		monitoring.Errorf("%v", err)
		return 1
	}

	fmt.Fprintf(stdout, "run %s (%s)\n", run.ID, run.Version)
	fmt.Fprintf(stdout, "started %s, finished %s, %d processed, %d failed\n",
		run.StartedAt.Format(time.RFC3339), finishedAt(run.FinishedAt), run.Processed, run.Failed)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDING\tHS\tSTATUS\tEVENTS\tANOMALIES\tDETAIL")
	for _, f := range files {
		detail := f.NPZPath
		if f.ErrorType != "" {
			detail = f.ErrorType + ": " + f.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", f.Recording, f.HSID, f.Status, f.Events, f.Anomalies, detail)
	}
	tw.Flush()
	return 0
}

func finishedAt(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
