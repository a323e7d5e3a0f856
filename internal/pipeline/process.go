package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/mea-sync/internal/anomaly"
	"github.com/banshee-data/mea-sync/internal/arduino"
	"github.com/banshee-data/mea-sync/internal/artifact"
	"github.com/banshee-data/mea-sync/internal/fixer"
	"github.com/banshee-data/mea-sync/internal/handshake"
	"github.com/banshee-data/mea-sync/internal/matching"
	"github.com/banshee-data/mea-sync/internal/mea"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/report"
	"github.com/banshee-data/mea-sync/internal/trim"
	"github.com/banshee-data/mea-sync/internal/yline"
)

// processRecording reconciles one recording and fills out as it goes, so a
// failure still reports how far the file got. A reconciliation failure
// writes partial artifacts before it is returned.
func (r *Runner) processRecording(path string, out *report.FileOutcome) error {
	name := filepath.Base(path)
	cfg := r.cfg

	ledPath, err := matching.MatchLEDFile(r.fs, name, cfg.Paths.LEDDir, cfg.GetNeighborhood())
	if err != nil {
		return fmt.Errorf("could not match LED file: %w", err)
	}
	out.LEDLog = filepath.Base(ledPath)
	monitoring.Infof("Matched LED file: %s", out.LEDLog)

	window := mea.Window{SyncDurationSec: cfg.GetSyncDurationSec(), PostStimSec: cfg.GetPostStimPhase()}
	meaTS, err := mea.LoadTimestamps(r.mea, path, window)
	if err != nil {
		return wrapInput(err)
	}
	led, err := arduino.Load(r.fs, ledPath, r.codes)
	if err != nil {
		return wrapInput(err)
	}

	tolerance := cfg.GetThreshold()
	detector := handshake.NewDetector(cfg.Handshake.StartSequences, cfg.Handshake.StopSequences)
	ledHS, err := detector.Find(led.Timestamps, tolerance)
	if err != nil {
		return fmt.Errorf("LED handshakes: %w", err)
	}
	meaHS, err := detector.Find(meaTS, tolerance)
	if err != nil {
		return fmt.Errorf("MEA handshakes: %w", err)
	}
	monitoring.Infof("LED start handshake types: %v", ledHS.StartNames)
	monitoring.Infof("LED stop handshake types: %v", ledHS.StopNames)
	monitoring.Infof("MEA start handshake types: %v", meaHS.StartNames)
	monitoring.Infof("MEA stop handshake types: %v", meaHS.StopNames)
	if len(ledHS.Pairs) != len(meaHS.Pairs) {
		monitoring.Warnf("%s: %d LED handshake pairs vs %d MEA pairs", name, len(ledHS.Pairs), len(meaHS.Pairs))
	}

	stimLED, indexMap := trim.WithIndexMap(led.Timestamps, ledHS.Pairs)
	stimMEA := trim.Windows(meaTS, meaHS.Pairs)
	monitoring.Infof("Stimulus-phase LED timestamps: %d", len(stimLED))
	monitoring.Infof("Stimulus-phase MEA timestamps: %d", len(stimMEA))

	expected, _ := matching.ExpectedDiff(name)
	monitoring.Infof("Expected diff (us) = %d", expected)

	classifier := anomaly.NewClassifier(expected, tolerance)
	classifier.PauseThreshold = cfg.GetPauseThreshold()
	trimmed := classifier.Detect(stimLED)
	anomalies, err := trim.Remap(trimmed, indexMap)
	if err != nil {
		return fmt.Errorf("remap anomalies: %w", err)
	}
	out.Anomalies = countsByName(anomalies)
	monitoring.Debugf("Anomalies: %v", out.Anomalies)

	findings := yline.Check(led.LineTypes, ledHS.Pairs, r.codes.Y)
	out.YLineFindings = len(findings)
	for _, f := range findings {
		monitoring.Warnf("%s: Y line right after start handshake %d at index %d", name, f.HandshakeID, f.FirstPostStartIndex)
	}

	res, fixErr := fixer.Fix(fixer.Input{
		ArduinoTS:   led.Timestamps,
		Patterns:    led.Patterns,
		LineTypes:   led.LineTypes,
		ReferenceTS: meaTS,
		Anomalies:   anomalies,
		Pairs:       ledHS.Pairs,
	})
	var rerr *fixer.ReconcileError
	if fixErr != nil && !errors.As(fixErr, &rerr) {
		return fmt.Errorf("fix anomalies: %w", fixErr)
	}
	out.Partial = res.Partial
	out.Events = len(res.Timestamps)

	base := artifact.BaseName(name)
	writer := artifact.NewWriter(r.fs, cfg.Paths.ResultsDir)
	paths, err := writer.Write(base, artifact.Output{
		Fix: res,
		Handshakes: []artifact.StreamPairs{
			{Stream: "led", Pairs: ledHS.Pairs},
			{Stream: "mea", Pairs: meaHS.Pairs},
		},
		Anomalies: anomalies,
		Findings:  findings,
	})
	out.Artifacts = artifactList(paths)
	if err != nil {
		return errors.Join(fixErr, fmt.Errorf("write artifacts: %w", err))
	}

	series := report.Series(res.Log)
	stats := series.Stats()
	out.Drift = &stats
	if r.plots && !res.Partial {
		if err := report.WriteDriftPlots(r.fs, r.cfg.Paths.ResultsDir, paths.DriftPNG, paths.DriftHTML, base, series); err != nil {
			monitoring.Warnf("%s: drift plots skipped: %v", name, err)
		} else {
			out.Artifacts = append(out.Artifacts, paths.DriftPNG, paths.DriftHTML)
		}
	}
	return fixErr
}

func wrapInput(err error) error {
	if inputMissing(err) {
		return fmt.Errorf("%w: %w", ErrInputMissing, err)
	}
	return err
}

func countsByName(records []anomaly.Record) map[string]int {
	counts := anomaly.Counts(records)
	out := make(map[string]int, len(counts))
	for k, n := range counts {
		out[string(k)] = n
	}
	return out
}

func artifactList(p artifact.Paths) []string {
	var out []string
	for _, s := range []string{p.NPZ, p.CorrectionLog, p.HandshakeSummary, p.AnomalySummary, p.YLineFindings} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
