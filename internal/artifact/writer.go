package artifact

import (
	"bytes"
	"fmt"
	"io"

	"github.com/banshee-data/mea-sync/internal/anomaly"
	"github.com/banshee-data/mea-sync/internal/fixer"
	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/security"
	"github.com/banshee-data/mea-sync/internal/yline"
)

// Output is everything written for one recording.
type Output struct {
	Fix        *fixer.Result
	Handshakes []StreamPairs
	Anomalies  []anomaly.Record
	Findings   []yline.Finding
}

// Writer writes artifacts into Dir on FS.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewWriter returns a Writer for dir.
func NewWriter(fsys fsutil.FileSystem, dir string) *Writer {
	return &Writer{FS: fsys, Dir: dir}
}

func (w *Writer) write(path string, fn func(io.Writer) error) error {
	if err := security.ValidatePathWithinDirectory(path, w.Dir); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.FS.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	monitoring.Infof("Saved %s", path)
	return nil
}

// Write writes every artifact for base and returns their paths. The bundle
// and correction log use partial names when out.Fix.Partial is set; a
// complete run removes any partial leftovers of an earlier one.
func (w *Writer) Write(base string, out Output) (Paths, error) {
	if out.Fix == nil {
		return Paths{}, fmt.Errorf("no correction result for %s", base)
	}
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create results dir: %w", err)
	}
	paths := OutputPaths(w.Dir, base, out.Fix.Partial)

	bundle := Bundle{Timestamps: out.Fix.Timestamps, Patterns: out.Fix.Patterns}
	if err := w.write(paths.NPZ, func(wr io.Writer) error { return WriteNPZ(wr, bundle) }); err != nil {
		return paths, err
	}
	if err := w.write(paths.CorrectionLog, func(wr io.Writer) error { return WriteCorrectionLog(wr, out.Fix.Log) }); err != nil {
		return paths, err
	}
	if err := w.write(paths.HandshakeSummary, func(wr io.Writer) error { return WriteHandshakeSummary(wr, out.Handshakes...) }); err != nil {
		return paths, err
	}
	if err := w.write(paths.AnomalySummary, func(wr io.Writer) error { return WriteAnomalySummary(wr, out.Anomalies) }); err != nil {
		return paths, err
	}
	if len(out.Findings) > 0 {
		if err := w.write(paths.YLineFindings, func(wr io.Writer) error { return WriteYLineFindings(wr, out.Findings) }); err != nil {
			return paths, err
		}
	} else {
		paths.YLineFindings = ""
	}

	if !out.Fix.Partial {
		stale := OutputPaths(w.Dir, base, true)
		for _, p := range []string{stale.NPZ, stale.CorrectionLog} {
			if w.FS.Exists(p) {
				if err := w.FS.Remove(p); err != nil {
					monitoring.Warnf("could not remove stale %s: %v", p, err)
				}
			}
		}
	}
	return paths, nil
}
