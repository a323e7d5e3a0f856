// Package report summarises a sync run: clock drift statistics and plots for
// each recording, and the run summary written at the end of a batch.
package report

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mea-sync/internal/fixer"
)

// DriftSeries is the offset between corrected (MEA) and original (LED)
// timestamps for each reference-backed event. Synthetic events are excluded.
type DriftSeries struct {
	// Time is the normalised LED timestamp in microseconds.
	Time []float64
	// Offset is corrected minus original, in microseconds.
	Offset []float64
}

// DriftStats describes a DriftSeries.
type DriftStats struct {
	Samples    int     `json:"samples"`
	MeanOffset float64 `json:"mean_offset_us"`
	StdOffset  float64 `json:"std_offset_us"`
	Intercept  float64 `json:"intercept_us"`
	SlopePPM   float64 `json:"slope_ppm"`
}

// Series extracts the drift series from a correction log.
func Series(log []fixer.Record) DriftSeries {
	var s DriftSeries
	for _, r := range log {
		if r.CorrectedTimestamp == nil || r.Synthetic {
			continue
		}
		s.Time = append(s.Time, float64(r.OriginalTimestamp))
		s.Offset = append(s.Offset, float64(*r.CorrectedTimestamp-r.OriginalTimestamp))
	}
	return s
}

// Stats fits a line to the series. Fields that need more samples than are
// available stay zero.
func (s DriftSeries) Stats() DriftStats {
	d := DriftStats{Samples: len(s.Offset)}
	if d.Samples == 0 {
		return d
	}
	d.MeanOffset = stat.Mean(s.Offset, nil)
	d.Intercept = d.MeanOffset
	if d.Samples < 2 {
		return d
	}
	d.StdOffset = stat.StdDev(s.Offset, nil)
	if stat.Variance(s.Time, nil) == 0 {
		return d
	}
	alpha, beta := stat.LinearRegression(s.Time, s.Offset, nil, false)
	if !math.IsNaN(beta) && !math.IsInf(beta, 0) {
		d.Intercept = alpha
		d.SlopePPM = beta * 1e6
	}
	return d
}
