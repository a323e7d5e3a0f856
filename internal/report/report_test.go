package report

import (
	"bytes"
	"encoding/json"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mea-sync/internal/fixer"
	"github.com/banshee-data/mea-sync/internal/fsutil"
)

func driftLog(n int, ppm float64) []fixer.Record {
	log := make([]fixer.Record, n)
	for i := range log {
		orig := int64(i) * 62500
		corr := 1_000_000 + orig + int64(float64(orig)*ppm/1e6)
		log[i] = fixer.Record{OriginalIndex: i, OriginalTimestamp: orig, CorrectedTimestamp: &corr}
	}
	return log
}

func TestSeries_SkipsSyntheticAndUnfixed(t *testing.T) {
	log := driftLog(4, 0)
	log[1].Synthetic = true
	log[3].CorrectedTimestamp = nil

	s := Series(log)
	assert.Equal(t, []float64{0, 125000}, s.Time)
	assert.Equal(t, []float64{1_000_000, 1_000_000}, s.Offset)
}

func TestStats(t *testing.T) {
	st := Series(driftLog(2000, 50)).Stats()
	assert.Equal(t, 2000, st.Samples)
	assert.InDelta(t, 50, st.SlopePPM, 0.5)
	assert.InDelta(t, 1_000_000, st.Intercept, 5)
	assert.Greater(t, st.StdOffset, 0.0)

	assert.Equal(t, DriftStats{}, DriftSeries{}.Stats())

	one := DriftSeries{Time: []float64{5}, Offset: []float64{7}}.Stats()
	assert.Equal(t, DriftStats{Samples: 1, MeanOffset: 7, Intercept: 7}, one)

	flat := DriftSeries{Time: []float64{5, 5}, Offset: []float64{1, 3}}.Stats()
	assert.False(t, math.IsNaN(flat.SlopePPM))
	assert.Zero(t, flat.SlopePPM)
}

func TestWriteDriftPlots(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	s := Series(driftLog(200, 20))
	require.NoError(t, WriteDriftPlots(fsys, "/out", "/out/a_drift.png", "/out/a_drift.html", "RecID001", s))

	data, err := fsys.ReadFile("/out/a_drift.png")
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	html, err := fsys.ReadFile("/out/a_drift.html")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "RecID001"))

	assert.Error(t, WriteDriftPlots(fsys, "/out", "/out/b.png", "/out/b.html", "empty", DriftSeries{}))
}

func TestWriteDriftPlots_OutsideDir(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	s := Series(driftLog(200, 20))

	err := WriteDriftPlots(fsys, "/out", "/out/../elsewhere/a.png", "/out/a.html", "RecID001", s)
	assert.ErrorContains(t, err, "path traversal")
	err = WriteDriftPlots(fsys, "/out", "/out/a.png", "/tmp/a.html", "RecID001", s)
	assert.ErrorContains(t, err, "path traversal")

	assert.False(t, fsys.Exists("/elsewhere/a.png"))
	assert.False(t, fsys.Exists("/out/a.png"), "nothing is written when either path escapes")
}

func TestRunSummary(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &RunSummary{RunID: "abc", Version: "dev", StartedAt: start, FinishedAt: start.Add(time.Minute)}
	s.Add(FileOutcome{File: "RecID001.h5", Status: StatusProcessed, Events: 10, Anomalies: map[string]int{"merge": 1}})
	s.Add(FileOutcome{File: "RecID002.h5", Status: StatusFailed, ErrorType: "matching", Error: "no LED log found"})
	s.Add(FileOutcome{File: "RecID003.h5", Status: StatusSkipped})

	assert.Equal(t, 1, s.Processed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	require.Len(t, s.FailedFiles(), 1)

	fsys := fsutil.NewMemoryFileSystem()
	path, err := WriteSummary(fsys, "/results", s)
	require.NoError(t, err)
	assert.Equal(t, "/results/run_summary.json", path)

	raw, err := fsys.ReadFile(path)
	require.NoError(t, err)
	var back RunSummary
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "abc", back.RunID)
	assert.Len(t, back.Files, 3)
}

func TestValidate_RejectsFailureWithoutError(t *testing.T) {
	s := &RunSummary{RunID: "abc", Version: "dev"}
	s.Add(FileOutcome{File: "RecID002.h5", Status: StatusFailed})
	_, err := s.Marshal()
	assert.Error(t, err)

	assert.Error(t, Validate([]byte(`{"run_id": ""}`)))
}

func TestMarshal_EmptyRun(t *testing.T) {
	s := &RunSummary{RunID: "abc", Version: "dev", Cancelled: true}
	raw, err := s.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"files": []`)
}
