package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/security"
)

// SummaryFileName is the run summary written to the results directory.
const SummaryFileName = "run_summary.json"

// File outcome statuses.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

//go:embed schema/run_summary.schema.json
var summarySchema []byte

const summarySchemaURL = "https://github.com/banshee-data/mea-sync/schema/run_summary.schema.json"

// FileOutcome records what happened to one recording.
type FileOutcome struct {
	File          string         `json:"file"`
	HSID          string         `json:"hs_id,omitempty"`
	LEDLog        string         `json:"led_log,omitempty"`
	Status        string         `json:"status"`
	ErrorType     string         `json:"error_type,omitempty"`
	Error         string         `json:"error,omitempty"`
	Partial       bool           `json:"partial,omitempty"`
	Events        int            `json:"events,omitempty"`
	Anomalies     map[string]int `json:"anomalies,omitempty"`
	YLineFindings int            `json:"yline_findings,omitempty"`
	Drift         *DriftStats    `json:"drift,omitempty"`
	Artifacts     []string       `json:"artifacts,omitempty"`
}

// RunSummary is the end-of-batch record of a sync run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Version    string        `json:"version"`
	ConfigPath string        `json:"config_path,omitempty"`
	LogPath    string        `json:"log_path,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Cancelled  bool          `json:"cancelled"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped,omitempty"`
	Files      []FileOutcome `json:"files"`
}

// Add appends an outcome and updates the counters.
func (s *RunSummary) Add(o FileOutcome) {
	switch o.Status {
	case StatusProcessed:
		s.Processed++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
	s.Files = append(s.Files, o)
}

// FailedFiles returns the outcomes with status failed.
func (s *RunSummary) FailedFiles() []FileOutcome {
	var out []FileOutcome
	for _, f := range s.Files {
		if f.Status == StatusFailed {
			out = append(out, f)
		}
	}
	return out
}

var compileSummarySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(summarySchemaURL, bytes.NewReader(summarySchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(summarySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Validate checks raw against the run summary schema.
func Validate(raw []byte) error {
	schema, err := compileSummarySchema()
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

// Marshal encodes s and validates the result.
func (s *RunSummary) Marshal() ([]byte, error) {
	if s.Files == nil {
		s.Files = []FileOutcome{}
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("run summary failed validation: %w", err)
	}
	return raw, nil
}

// WriteSummary writes s to dir and returns the path.
func WriteSummary(fsys fsutil.FileSystem, dir string, s *RunSummary) (string, error) {
	raw, err := s.Marshal()
	if err != nil {
		return "", err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(dir, SummaryFileName)
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	if err := fsys.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write run summary: %w", err)
	}
	return path, nil
}
