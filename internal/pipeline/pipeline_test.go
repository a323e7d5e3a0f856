package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mea-sync/internal/artifact"
	"github.com/banshee-data/mea-sync/internal/config"
	"github.com/banshee-data/mea-sync/internal/db"
	"github.com/banshee-data/mea-sync/internal/fixer"
	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/handshake"
	"github.com/banshee-data/mea-sync/internal/mea"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/report"
	"github.com/banshee-data/mea-sync/internal/testutil"
	"github.com/banshee-data/mea-sync/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

const (
	h5Dir      = "data/h5"
	ledDir     = "data/led"
	resultsDir = "results"
	recording  = "RecID012_62p5ms.h5"
	codeV      = 86
	codeY      = 89
)

var (
	startSig = []int64{10000, 20000, 10000}
	stopSig  = []int64{30000, 30000, 5000}
)

func ptr[T any](v T) *T { return &v }

func testConfig() *config.SyncConfig {
	return &config.SyncConfig{
		Paths: config.Paths{LEDDir: ledDir, H5Dir: h5Dir, ResultsDir: resultsDir},
		Parameters: config.Parameters{
			Threshold:       ptr(int64(1000)),
			SyncDurationSec: ptr(0.0),
		},
		Arduino: config.Arduino{Bytes: map[string]int{
			"BYTE_V": codeV, "BYTE_W": 87, "BYTE_X": 88, "BYTE_Y": codeY, "BYTE_Z": 90,
		}},
		Handshake: config.Handshake{
			StartSequences: map[string][]int64{"hs_start": startSig},
			StopSequences:  map[string][]int64{"hs_stop": stopSig},
		},
	}
}

// session builds a stream of start handshake, stimulus intervals and stop
// handshake.
func session(start int64, stimulus ...int64) []int64 {
	intervals := append([]int64{}, startSig...)
	intervals = append(intervals, stimulus...)
	intervals = append(intervals, stopSig...)
	return testutil.WithIntervals(start, intervals...)
}

type fakeLoader map[string][]int64

func (f fakeLoader) LoadEvents(path string) (*mea.Events, error) {
	ts, ok := f[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mea.ErrNotFound, path)
	}
	ev := &mea.Events{}
	for i, v := range ts {
		if i%2 == 0 {
			ev.High = append(ev.High, v)
		} else {
			ev.Low = append(ev.Low, v)
		}
	}
	return ev, nil
}

type fixture struct {
	fs     *fsutil.MemoryFileSystem
	loader fakeLoader
	clock  *timeutil.MockClock
}

func newFixture() *fixture {
	return &fixture{
		fs:     fsutil.NewMemoryFileSystem(),
		loader: fakeLoader{},
		clock:  timeutil.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func (f *fixture) addRecording(name string, ts []int64) {
	_ = f.fs.WriteFile(filepath.Join(h5Dir, name), nil, 0o644)
	f.loader[name] = ts
}

func (f *fixture) addLED(name, content string) {
	_ = f.fs.WriteFile(filepath.Join(ledDir, name), []byte(content), 0o644)
}

func (f *fixture) runner(t *testing.T, cfg *config.SyncConfig, ledger Ledger) *Runner {
	t.Helper()
	r, err := New(Options{Config: cfg, FS: f.fs, MEA: f.loader, Clock: f.clock, Ledger: ledger})
	require.NoError(t, err)
	return r
}

func (f *fixture) readSummary(t *testing.T) []byte {
	t.Helper()
	raw, err := f.fs.ReadFile(filepath.Join(resultsDir, report.SummaryFileName))
	require.NoError(t, err)
	require.NoError(t, report.Validate(raw))
	return raw
}

func TestRun_CleanRecording(t *testing.T) {
	f := newFixture()
	meaTS := session(2_000_000, testutil.Repeat(62500, 20)...)
	f.addRecording(recording, meaTS)
	f.addLED("led_RecID012.txt", testutil.ArduinoLog(session(1000, testutil.Repeat(62500, 20)...), codeV))

	summary, err := f.runner(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Files, 1)

	out := summary.Files[0]
	assert.Equal(t, report.StatusProcessed, out.Status)
	assert.Equal(t, "UNKNOWN", out.HSID)
	assert.Equal(t, "led_RecID012.txt", out.LEDLog)
	assert.Equal(t, len(meaTS), out.Events)
	assert.False(t, out.Partial)
	assert.Empty(t, out.Anomalies)
	require.NotNil(t, out.Drift)
	assert.InDelta(t, float64(2_000_000-1000), out.Drift.MeanOffset, 1e-6)

	paths := artifact.OutputPaths(resultsDir, "RecID012_62p5ms", false)
	raw, err := f.fs.ReadFile(paths.NPZ)
	require.NoError(t, err)
	bundle, err := artifact.ReadNPZ(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(meaTS, bundle.Timestamps); diff != "" {
		t.Errorf("corrected timestamps mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, f.fs.Exists(paths.CorrectionLog))
	assert.True(t, f.fs.Exists(paths.HandshakeSummary))
	assert.True(t, f.fs.Exists(paths.AnomalySummary))
	assert.False(t, f.fs.Exists(paths.YLineFindings))
	f.readSummary(t)
}

func TestRun_MergeConsumesExtraReference(t *testing.T) {
	f := newFixture()
	// The LED log misses the 10th stimulus event, so one of its intervals
	// spans two periods.
	ledStim := append(testutil.Repeat(62500, 8), 125000)
	ledStim = append(ledStim, testutil.Repeat(62500, 11)...)
	meaTS := session(500_000, testutil.Repeat(62500, 21)...)
	f.addRecording(recording, meaTS)
	f.addLED("led_RecID012.txt", testutil.ArduinoLog(session(1000, ledStim...), codeV))

	summary, err := f.runner(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Files, 1)
	out := summary.Files[0]
	require.Equal(t, report.StatusProcessed, out.Status, out.Error)
	assert.Equal(t, map[string]int{"merge": 1}, out.Anomalies)
	assert.Equal(t, len(meaTS)-1, out.Events)

	raw, err := f.fs.ReadFile(artifact.OutputPaths(resultsDir, "RecID012_62p5ms", false).NPZ)
	require.NoError(t, err)
	bundle, err := artifact.ReadNPZ(raw)
	require.NoError(t, err)
	// Events before the merge line up 1:1; after it the LED stream is one
	// reference event behind.
	assert.Equal(t, meaTS[11], bundle.Timestamps[11])
	assert.Equal(t, meaTS[13], bundle.Timestamps[12])
	assert.Equal(t, meaTS[len(meaTS)-1], bundle.Timestamps[len(bundle.Timestamps)-1])
}

func TestRun_ReferenceExhaustedWritesPartial(t *testing.T) {
	f := newFixture()
	f.addRecording(recording, session(500_000, testutil.Repeat(62500, 15)...))
	ledTS := session(1000, testutil.Repeat(62500, 20)...)
	f.addLED("led_RecID012.txt", testutil.ArduinoLog(ledTS, codeV))

	summary, err := f.runner(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	out := summary.Files[0]
	assert.Equal(t, report.StatusFailed, out.Status)
	assert.Equal(t, TypeReconciliation, out.ErrorType)
	assert.True(t, out.Partial)
	assert.Equal(t, 22, out.Events)

	partial := artifact.OutputPaths(resultsDir, "RecID012_62p5ms", true)
	assert.True(t, f.fs.Exists(partial.NPZ))
	assert.True(t, f.fs.Exists(partial.CorrectionLog))
	assert.Contains(t, out.Artifacts, partial.NPZ)

	logCSV, err := f.fs.ReadFile(partial.CorrectionLog)
	require.NoError(t, err)
	assert.Equal(t, len(ledTS)-22, strings.Count(string(logCSV), "not_fixed_due_to_error"))
	f.readSummary(t)
}

func TestRun_FailuresAreRecordedAndBatchContinues(t *testing.T) {
	f := newFixture()
	stim := testutil.Repeat(62500, 10)
	f.addRecording("RecID001_62p5ms.h5", session(500_000, stim...))
	f.addLED("led_RecID001.txt", testutil.ArduinoLog(session(1000, stim...), codeV))
	// No LED log within two IDs of 020.
	f.addRecording("RecID020_62p5ms.h5", session(500_000, stim...))
	// LED log without a stop handshake.
	f.addRecording("RecID030_62p5ms.h5", session(500_000, stim...))
	f.addLED("led_RecID030.txt", testutil.ArduinoLog(testutil.WithIntervals(1000, stim...), codeV))
	// LED log present but the recording has no events.
	_ = f.fs.WriteFile(filepath.Join(h5Dir, "RecID040_62p5ms.h5"), nil, 0o644)
	f.addLED("led_RecID040.txt", testutil.ArduinoLog(session(1000, stim...), codeV))

	summary, err := f.runner(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 3, summary.Failed)

	types := map[string]string{}
	for _, o := range summary.FailedFiles() {
		types[o.File] = o.ErrorType
	}
	assert.Equal(t, map[string]string{
		"RecID020_62p5ms.h5": TypeNoMatch,
		"RecID030_62p5ms.h5": TypeStructural,
		"RecID040_62p5ms.h5": TypeInputMissing,
	}, types)
	f.readSummary(t)
}

func TestRun_RecIDRangeSkips(t *testing.T) {
	f := newFixture()
	stim := testutil.Repeat(62500, 10)
	for _, id := range []string{"005", "012", "030"} {
		f.addRecording("RecID"+id+"_62p5ms.h5", session(500_000, stim...))
		f.addLED("led_RecID"+id+".txt", testutil.ArduinoLog(session(1000, stim...), codeV))
	}
	_ = f.fs.WriteFile(filepath.Join(h5Dir, "calibration.h5"), nil, 0o644)

	cfg := testConfig()
	cfg.Parameters.RecIDStart = ptr(10)
	cfg.Parameters.RecIDEnd = ptr(20)

	summary, err := f.runner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 3, summary.Skipped)
	for _, o := range summary.Files {
		if o.Status == report.StatusProcessed {
			assert.Equal(t, "RecID012_62p5ms.h5", o.File)
		}
	}
}

func TestRun_YLineFinding(t *testing.T) {
	f := newFixture()
	stim := testutil.Repeat(62500, 10)
	f.addRecording(recording, session(500_000, stim...))

	ledTS := session(1000, stim...)
	var sb strings.Builder
	for i, v := range ledTS {
		code := codeV
		if i == len(startSig)+1 {
			code = codeY
		}
		sb.WriteString(testutil.ArduinoLine(uint32(v), []int{i, 0}, code) + "\n")
	}
	f.addLED("led_RecID012.txt", sb.String())

	summary, err := f.runner(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files[0].YLineFindings)
	assert.True(t, f.fs.Exists(artifact.OutputPaths(resultsDir, "RecID012_62p5ms", false).YLineFindings))
}

func TestRun_CancelledBeforeFirstFile(t *testing.T) {
	f := newFixture()
	stim := testutil.Repeat(62500, 10)
	f.addRecording(recording, session(500_000, stim...))
	f.addLED("led_RecID012.txt", testutil.ArduinoLog(session(1000, stim...), codeV))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := f.runner(t, testConfig(), nil).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)
	assert.Empty(t, summary.Files)
	f.readSummary(t)
}

func TestRun_RecordsToLedger(t *testing.T) {
	f := newFixture()
	stim := testutil.Repeat(62500, 10)
	f.addRecording(recording, session(500_000, stim...))
	f.addLED("led_RecID012.txt", testutil.ArduinoLog(session(1000, stim...), codeV))
	f.addRecording("RecID099_HS2_62p5ms.h5", session(500_000, stim...))

	ledger, err := db.NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	summary, err := f.runner(t, testConfig(), ledger).Run(context.Background())
	require.NoError(t, err)

	run, err := ledger.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)

	files, err := ledger.ListFiles(context.Background(), summary.RunID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, recording, files[0].Recording)
	assert.Equal(t, "UNKNOWN", files[0].HSID)
	assert.NotEmpty(t, files[0].NPZPath)
	assert.Equal(t, "HS2", files[1].HSID)
	assert.Equal(t, TypeNoMatch, files[1].ErrorType)
}

func TestPlan(t *testing.T) {
	f := newFixture()
	f.addRecording("RecID001_62p5ms.h5", nil)
	f.addRecording("RecID050_62p5ms.h5", nil)
	f.addLED("led_RecID002.txt", "")

	plan, err := f.runner(t, testConfig(), nil).Plan()
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, filepath.Join(ledDir, "led_RecID002.txt"), plan[0].LEDLog)
	assert.NoError(t, plan[0].Err)
	assert.ErrorIs(t, plan[1].Err, ErrNoMatch)
}

func TestErrorType(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", context.Canceled), TypeCancelled},
		{fmt.Errorf("%w: %w", ErrInputMissing, mea.ErrNotFound), TypeInputMissing},
		{fmt.Errorf("match: %w", ErrNoMatch), TypeNoMatch},
		{fmt.Errorf("LED: %w", handshake.ErrOrder), TypeStructural},
		{fmt.Errorf("MEA: %w", handshake.ErrTooFewTimestamps), TypeStructural},
		{&fixer.ReconcileError{Index: 3}, TypeReconciliation},
		{errors.New("disk full"), TypeInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ErrorType(c.err), "%v", c.err)
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
