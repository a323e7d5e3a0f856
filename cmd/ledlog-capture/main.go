// Command ledlog-capture records the LED sketch's serial output to a log
// file that mea-sync can read.
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

	"github.com/banshee-data/mea-sync/internal/arduino"
	"github.com/banshee-data/mea-sync/internal/config"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/serialcap"
)

var (
	port       = flag.String("port", "/dev/ttyACM0", "Serial port of the LED Arduino")
	baud       = flag.Int("baud", serialcap.DefaultBaudRate, "Baud rate")
	out        = flag.String("out", "", "Output log file (required)")
	configPath = flag.String("config", config.DefaultConfigPath, "Sync config holding the arduino.bytes codes")
)

// portOpener opens the serial source; tests swap in a reader.
type portOpener func(path string, opts serialcap.PortOptions) (io.ReadCloser, error)

func openSerial(path string, opts serialcap.PortOptions) (io.ReadCloser, error) {
	return serialcap.Open(path, opts)
}

type options struct {
	port       string
	baud       int
	out        string
	configPath string
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, options{port: *port, baud: *baud, out: *out, configPath: *configPath}, openSerial, os.Stdout))
}

// run captures until the port closes or ctx is cancelled and returns the
// exit code. Cancellation is a normal stop; any other capture error is 1.
func run(ctx context.Context, opts options, open portOpener, stdout io.Writer) int {
	if opts.out == "" {
		log.Print("Output file is required")
		return 2
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	codes := arduino.CodesFromConfig(cfg)

	f, err := os.OpenFile(opts.out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("Failed to open %s: %v", opts.out, err)
		return 1
	}
	defer f.Close()

	p, err := open(opts.port, serialcap.PortOptions{BaudRate: opts.baud})
	if err != nil {
		log.Printf("Failed to open serial port: %v", err)
		return 1
	}
	defer p.Close()

	monitoring.Infof("Capturing %s at %d baud into %s", opts.port, opts.baud, opts.out)
	stats, err := serialcap.Capture(ctx, p, f, codes)
	fmt.Fprintf(stdout, "wrote %d lines (%d pattern lines), dropped %d\n", stats.Written, stats.Patterns, stats.Dropped)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Capture failed: %v", err)
		return 1
	}
	return 0
}
