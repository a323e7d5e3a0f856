// Command mea-sync reconciles the LED logs of a batch of MEA recordings
// against the recordings' digital events and writes corrected timestamps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/mea-sync/internal/config"
	"github.com/banshee-data/mea-sync/internal/db"
	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/pipeline"
	"github.com/banshee-data/mea-sync/internal/timeutil"
	"github.com/banshee-data/mea-sync/internal/version"
)

type options struct {
	configPath  string
	dryRun      bool
	plots       bool
	dbPath      string
	showVersion bool
	listRuns    bool
	showRun     string
	migrate     string
}

func (o options) ledgerOnly() bool {
	return o.listRuns || o.showRun != "" || o.migrate != ""
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("mea-sync", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.DefaultConfigPath, "Path to the sync config (.toml, .json, .yaml)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "List recording/LED log pairs and exit")
	fs.BoolVar(&o.plots, "plots", false, "Write drift plots for every recording")
	fs.StringVar(&o.dbPath, "db", "", "Run ledger database (overrides paths.db_path)")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&o.listRuns, "list-runs", false, "List recent runs from the ledger and exit")
	fs.StringVar(&o.showRun, "show-run", "", "Print the ledger rows of one run and exit")
	fs.StringVar(&o.migrate, "migrate", "", "Ledger schema action: up, down or status")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.ledgerOnly() && o.dryRun {
		return o, errors.New("-dry-run cannot be combined with ledger commands")
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("mea-sync: %v", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, opts, os.Stdout))
}

// run executes one invocation and returns the process exit code. A batch
// with failed files still exits 0; setup errors exit 1.
func run(ctx context.Context, opts options, stdout io.Writer) int {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	clock := timeutil.RealClock{}
	closer, logPath, err := monitoring.Setup(cfg.GetLogDir(), cfg.GetLogLevel(), clock.Now())
	if err != nil {
		log.Printf("Failed to set up logging: %v", err)
		return 1
	}
	defer closer.Close()
	monitoring.Infof("______________________")
	monitoring.Infof("Starting Sync Pipeline (%s)", version.String())

	popts := pipeline.Options{
		Config:     cfg,
		ConfigPath: opts.configPath,
		LogPath:    logPath,
		FS:         fsutil.OSFileSystem{},
		Clock:      clock,
		Plots:      opts.plots,
	}

	dbPath := cfg.Paths.DBPath
	if opts.dbPath != "" {
		dbPath = opts.dbPath
	}
	if opts.ledgerOnly() {
		if dbPath == "" {
			monitoring.Errorf("Ledger commands need -db or paths.db_path")
			return 1
		}
		ledger, err := db.NewDB(dbPath)
		if err != nil {
			monitoring.Errorf("Failed to open run ledger: %v", err)
			return 1
		}
		defer ledger.Close()
		return ledgerCommand(ctx, ledger, opts, stdout)
	}
	if dbPath != "" && !opts.dryRun {
		ledger, err := db.NewDB(dbPath)
		if err != nil {
			monitoring.Errorf("Failed to open run ledger: %v", err)
			return 1
		}
		defer ledger.Close()
		popts.Ledger = ledger
	}

	runner, err := pipeline.New(popts)
	if err != nil {
		monitoring.Errorf("%v", err)
		return 1
	}

	if opts.dryRun {
		return dryRun(runner, stdout)
	}

	summary, err := runner.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		monitoring.Warnf("Interrupted, stopping gracefully.")
	case err != nil:
		monitoring.Errorf("Run failed: %v", err)
		return 1
	}
	fmt.Fprintf(stdout, "run %s: %d processed, %d failed, %d skipped\n",
		summary.RunID, summary.Processed, summary.Failed, summary.Skipped)
	return 0
}

func dryRun(runner *pipeline.Runner, stdout io.Writer) int {
	plan, err := runner.Plan()
	if err != nil {
		monitoring.Errorf("Dry run failed: %v", err)
		return 1
	}
	for _, p := range plan {
		if p.Err != nil {
			fmt.Fprintf(stdout, "%s\t-\t%v\n", p.Recording, p.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\n", p.Recording, p.LEDLog)
	}
	return 0
}
