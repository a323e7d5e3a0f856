// Package artifact writes the per-recording outputs of a sync run: the
// corrected array bundle, the correction log and the summary tables.
package artifact

import (
	"path/filepath"
	"strings"

	"github.com/banshee-data/mea-sync/internal/security"
)

// Paths names every artifact of one recording.
type Paths struct {
	NPZ              string
	CorrectionLog    string
	HandshakeSummary string
	AnomalySummary   string
	YLineFindings    string
	DriftPNG         string
	DriftHTML        string
}

// BaseName strips the directory and extension from a recording file name
// and replaces any characters unsafe in a file name.
func BaseName(recording string) string {
	base := filepath.Base(recording)
	return security.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
}

// OutputPaths returns the artifact paths for base in dir. Partial results
// get distinct names for the bundle and the correction log so a complete
// earlier run is never overwritten by a failed one.
func OutputPaths(dir, base string, partial bool) Paths {
	suffix := ""
	if partial {
		suffix = "_partial"
	}
	join := func(name string) string { return filepath.Join(dir, base+name) }
	return Paths{
		NPZ:              join("_corrected" + suffix + ".npz"),
		CorrectionLog:    join("_correction_log" + suffix + ".csv"),
		HandshakeSummary: join("_handshake_summary.csv"),
		AnomalySummary:   join("_anomaly_summary.csv"),
		YLineFindings:    join("_yline_findings.csv"),
		DriftPNG:         join("_drift.png"),
		DriftHTML:        join("_drift.html"),
	}
}
