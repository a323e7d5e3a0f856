// Package pipeline runs a sync batch: every MEA recording in the input
// directory is matched with its LED log, reconciled and written out, and the
// batch ends with a run summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mea-sync/internal/arduino"
	"github.com/banshee-data/mea-sync/internal/config"
	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/matching"
	"github.com/banshee-data/mea-sync/internal/mea"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/report"
	"github.com/banshee-data/mea-sync/internal/timeutil"
	"github.com/banshee-data/mea-sync/internal/version"
)

// Ledger persists run and file outcomes. *db.DB implements it.
type Ledger interface {
	StartRun(ctx context.Context, s *report.RunSummary) error
	RecordFile(ctx context.Context, runID string, o report.FileOutcome, at time.Time) (string, error)
	FinishRun(ctx context.Context, s *report.RunSummary) error
}

// Options configures a Runner. FS, MEA and Clock default to the real
// implementations; Ledger is optional.
type Options struct {
	Config     *config.SyncConfig
	ConfigPath string
	LogPath    string
	FS         fsutil.FileSystem
	MEA        mea.Loader
	Ledger     Ledger
	Clock      timeutil.Clock

	// Plots forces drift plots on regardless of the config.
	Plots bool
}

// Runner processes a batch of recordings.
type Runner struct {
	cfg        *config.SyncConfig
	configPath string
	logPath    string
	fs         fsutil.FileSystem
	mea        mea.Loader
	ledger     Ledger
	clock      timeutil.Clock
	codes      arduino.Codes
	plots      bool
}

// New returns a Runner for opts.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	r := &Runner{
		cfg:        opts.Config,
		configPath: opts.ConfigPath,
		logPath:    opts.LogPath,
		fs:         opts.FS,
		mea:        opts.MEA,
		ledger:     opts.Ledger,
		clock:      opts.Clock,
		codes:      arduino.CodesFromConfig(opts.Config),
		plots:      opts.Plots || opts.Config.GetPlots(),
	}
	if r.fs == nil {
		r.fs = fsutil.OSFileSystem{}
	}
	if r.mea == nil {
		r.mea = mea.HDF5Loader{}
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	return r, nil
}

// recordings lists the .h5 files of the input directory and splits them
// by the recording ID filter.
func (r *Runner) recordings() (selected, skipped []string, err error) {
	names, err := fsutil.FilesWithExt(r.fs, r.cfg.Paths.H5Dir, ".h5")
	if err != nil {
		return nil, nil, fmt.Errorf("list recordings: %w", err)
	}
	lo, hi, _ := r.cfg.RecIDRange()
	for _, name := range names {
		if matching.InRange(name, lo, hi) {
			selected = append(selected, name)
		} else {
			skipped = append(skipped, name)
		}
	}
	return selected, skipped, nil
}

// PlanEntry is one line of a dry run.
type PlanEntry struct {
	Recording string
	LEDLog    string
	Err       error
}

// Plan matches every selected recording with its LED log without loading
// either file.
func (r *Runner) Plan() ([]PlanEntry, error) {
	names, _, err := r.recordings()
	if err != nil {
		return nil, err
	}
	plan := make([]PlanEntry, 0, len(names))
	for _, name := range names {
		led, err := matching.MatchLEDFile(r.fs, name, r.cfg.Paths.LEDDir, r.cfg.GetNeighborhood())
		plan = append(plan, PlanEntry{Recording: name, LEDLog: led, Err: err})
	}
	return plan, nil
}

// Run processes every selected recording and writes the run summary. Per-file
// failures are recorded and do not stop the batch. Cancelling ctx stops the
// batch before the next file; the summary is still written and Run returns
// it together with ctx's error.
func (r *Runner) Run(ctx context.Context) (*report.RunSummary, error) {
	summary := &report.RunSummary{
		RunID:      uuid.NewString(),
		Version:    version.Version,
		ConfigPath: r.configPath,
		LogPath:    r.logPath,
		StartedAt:  r.clock.Now(),
	}
	monitoring.Infof("Starting sync run %s (%s)", summary.RunID, version.String())

	names, skipped, err := r.recordings()
	if err != nil {
		return nil, err
	}
	if r.ledger != nil {
		if err := r.ledger.StartRun(ctx, summary); err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
	}

	for _, name := range skipped {
		monitoring.Debugf("Skipping %s: outside RecID range", name)
		r.record(ctx, summary, report.FileOutcome{File: name, HSID: matching.HSID(name), Status: report.StatusSkipped})
	}

	var runErr error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			monitoring.Warnf("Run cancelled, stopping before %s", name)
			summary.Cancelled = true
			runErr = err
			break
		}
		monitoring.Infof("Processing MEA file: %s", name)
		r.record(ctx, summary, r.process(name))
	}

	summary.FinishedAt = r.clock.Now()
	if r.ledger != nil {
		// The run context may already be cancelled; the ledger still needs the end state.
		if err := r.ledger.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			monitoring.Errorf("ledger: %v", err)
		}
	}
	path, err := report.WriteSummary(r.fs, r.cfg.Paths.ResultsDir, summary)
	if err != nil {
		return summary, errors.Join(runErr, err)
	}
	r.logSummary(summary, path)
	return summary, runErr
}

func (r *Runner) record(ctx context.Context, s *report.RunSummary, o report.FileOutcome) {
	s.Add(o)
	if r.ledger == nil {
		return
	}
	if _, err := r.ledger.RecordFile(context.WithoutCancel(ctx), s.RunID, o, r.clock.Now()); err != nil {
		monitoring.Errorf("ledger: %v", err)
	}
}

func (r *Runner) logSummary(s *report.RunSummary, path string) {
	if s.Processed > 0 {
		monitoring.Infof("Processed %d files successfully:", s.Processed)
		for _, f := range s.Files {
			if f.Status == report.StatusProcessed {
				monitoring.Infof("  - %s", f.File)
			}
		}
	}
	if failed := s.FailedFiles(); len(failed) > 0 {
		monitoring.Warnf("Failed to process %d files:", len(failed))
		for _, f := range failed {
			monitoring.Warnf("  - %s: [%s] %s", f.File, f.ErrorType, f.Error)
		}
	}
	monitoring.Infof("Run summary written to %s", path)
}

// process runs one recording and turns the result into an outcome.
func (r *Runner) process(name string) report.FileOutcome {
	out := report.FileOutcome{File: name, HSID: matching.HSID(name)}
	if err := r.processRecording(filepath.Join(r.cfg.Paths.H5Dir, name), &out); err != nil {
		out.Status = report.StatusFailed
		out.ErrorType = ErrorType(err)
		out.Error = err.Error()
		monitoring.Errorf("Error processing %s: %v", name, err)
		return out
	}
	out.Status = report.StatusProcessed
	monitoring.Infof("Successfully processed %s", name)
	return out
}
