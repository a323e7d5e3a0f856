package serialcap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/mea-sync/internal/arduino"
	"github.com/banshee-data/mea-sync/internal/monitoring"
)

// Stats counts what Capture saw.
type Stats struct {
	Written  int
	Dropped  int
	Patterns int
}

// Capture copies lines from r to w until r is exhausted or ctx is
// cancelled. Lines the LED log parser would reject (boot banners, partial
// lines after a reset) are dropped so the output can be read by arduino.Load.
func Capture(ctx context.Context, r io.Reader, w io.Writer, codes arduino.Codes) (Stats, error) {
	var stats Stats
	scan := bufio.NewScanner(r)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs in its own goroutine so cancellation is seen
	// even when the port is quiet.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()

		case err := <-scanErrChan:
			return stats, fmt.Errorf("read serial: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				// The reader sends its error before closing lineChan.
				select {
				case err := <-scanErrChan:
					return stats, fmt.Errorf("read serial: %w", err)
				default:
					return stats, nil
				}
			}
			line = strings.TrimSpace(line)
			row, err := arduino.ParseLine(line)
			if err != nil || !codes.WellFormed(row) {
				stats.Dropped++
				monitoring.Debugf("dropping serial line %q", line)
				continue
			}
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return stats, fmt.Errorf("write log: %w", err)
			}
			// Flush per line so an abrupt stop keeps everything captured so far.
			if err := bw.Flush(); err != nil {
				return stats, fmt.Errorf("write log: %w", err)
			}
			stats.Written++
			if row[len(row)-1] != codes.Z {
				stats.Patterns++
			}
		}
	}
}
