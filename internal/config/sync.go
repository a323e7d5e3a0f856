package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the sync tool looks for its configuration when
// no -config flag is given.
const DefaultConfigPath = "config.toml"

// RequiredByteCodes are the Arduino line-type keys every config must define.
var RequiredByteCodes = []string{"BYTE_V", "BYTE_W", "BYTE_X", "BYTE_Y", "BYTE_Z"}

// SyncConfig is the root configuration of a sync run. Optional scalar fields
// are pointers; the Get* methods supply defaults for any that are omitted.
type SyncConfig struct {
	Paths      Paths      `toml:"paths" json:"paths" yaml:"paths"`
	Parameters Parameters `toml:"parameters" json:"parameters" yaml:"parameters"`
	Arduino    Arduino    `toml:"arduino" json:"arduino" yaml:"arduino"`
	Handshake  Handshake  `toml:"handshake" json:"handshake" yaml:"handshake"`
}

// Paths locates inputs and outputs.
type Paths struct {
	LEDDir     string `toml:"path_led_dir" json:"path_led_dir" yaml:"path_led_dir"`
	H5Dir      string `toml:"path_h5_dir" json:"path_h5_dir" yaml:"path_h5_dir"`
	ResultsDir string `toml:"path_to_results" json:"path_to_results" yaml:"path_to_results"`
	LogDir     string `toml:"log_dir" json:"log_dir,omitempty" yaml:"log_dir"`
	DBPath     string `toml:"db_path" json:"db_path,omitempty" yaml:"db_path"`
}

// Parameters tune matching and classification. Timing values are in
// microseconds unless the name says otherwise.
type Parameters struct {
	RecIDStart      *int     `toml:"rec_id_start" json:"rec_id_start,omitempty" yaml:"rec_id_start"`
	RecIDEnd        *int     `toml:"rec_id_end" json:"rec_id_end,omitempty" yaml:"rec_id_end"`
	Threshold       *int64   `toml:"threshold" json:"threshold,omitempty" yaml:"threshold"`
	LogLevel        *string  `toml:"log_level" json:"log_level,omitempty" yaml:"log_level"`
	SyncDurationSec *float64 `toml:"sync_duration_sec" json:"sync_duration_sec,omitempty" yaml:"sync_duration_sec"`
	PostStimPhase   *float64 `toml:"post_stim_phase" json:"post_stim_phase,omitempty" yaml:"post_stim_phase"`
	PauseThreshold  *int64   `toml:"pause_threshold" json:"pause_threshold,omitempty" yaml:"pause_threshold"`
	Neighborhood    *int     `toml:"neighborhood" json:"neighborhood,omitempty" yaml:"neighborhood"`
	Plots           *bool    `toml:"plots" json:"plots,omitempty" yaml:"plots"`
}

// Arduino holds the line-type codes of the LED logger.
type Arduino struct {
	Bytes map[string]int `toml:"bytes" json:"bytes" yaml:"bytes"`
}

// Handshake holds the marker interval tables.
type Handshake struct {
	StartSequences map[string][]int64 `toml:"start_sequences" json:"start_sequences" yaml:"start_sequences"`
	StopSequences  map[string][]int64 `toml:"stop_sequences" json:"stop_sequences" yaml:"stop_sequences"`
}

// Helper functions to create pointers
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// LoadConfig reads a SyncConfig from a .toml, .json, .yaml or .yml file and
// validates it.
func LoadConfig(path string) (*SyncConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".toml", ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must be .toml, .json or .yaml, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, ext)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext without validating it.
func Parse(data []byte, ext string) (*SyncConfig, error) {
	cfg := &SyncConfig{}
	switch ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SyncConfig) Validate() error {
	if c.Paths.LEDDir == "" || c.Paths.H5Dir == "" || c.Paths.ResultsDir == "" {
		return fmt.Errorf("paths.path_led_dir, paths.path_h5_dir and paths.path_to_results are required")
	}

	if c.Parameters.Threshold == nil {
		return fmt.Errorf("parameters.threshold is required")
	}
	if *c.Parameters.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %d", *c.Parameters.Threshold)
	}
	if c.Parameters.SyncDurationSec != nil && *c.Parameters.SyncDurationSec < 0 {
		return fmt.Errorf("sync_duration_sec must be non-negative, got %f", *c.Parameters.SyncDurationSec)
	}
	if c.Parameters.PostStimPhase != nil && *c.Parameters.PostStimPhase > 0 &&
		*c.Parameters.PostStimPhase <= c.GetSyncDurationSec() {
		return fmt.Errorf("post_stim_phase (%f) must be after sync_duration_sec (%f)",
			*c.Parameters.PostStimPhase, c.GetSyncDurationSec())
	}
	if c.Parameters.PauseThreshold != nil && *c.Parameters.PauseThreshold <= 0 {
		return fmt.Errorf("pause_threshold must be positive, got %d", *c.Parameters.PauseThreshold)
	}
	if c.Parameters.Neighborhood != nil && *c.Parameters.Neighborhood < 0 {
		return fmt.Errorf("neighborhood must be non-negative, got %d", *c.Parameters.Neighborhood)
	}
	if lo, hi, ok := c.RecIDRange(); ok && lo > 0 && hi > 0 && lo > hi {
		return fmt.Errorf("rec_id_start (%d) is after rec_id_end (%d)", lo, hi)
	}

	for _, key := range RequiredByteCodes {
		if _, ok := c.Arduino.Bytes[key]; !ok {
			return fmt.Errorf("arduino.bytes.%s is required", key)
		}
	}

	if err := validateTable("start_sequences", c.Handshake.StartSequences); err != nil {
		return err
	}
	return validateTable("stop_sequences", c.Handshake.StopSequences)
}

func validateTable(name string, t map[string][]int64) error {
	if len(t) == 0 {
		return fmt.Errorf("handshake.%s must define at least one pattern", name)
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(t[k]) == 0 {
			return fmt.Errorf("handshake.%s.%s is empty", name, k)
		}
	}
	return nil
}

// RecIDRange returns the configured recording ID bounds. A zero or missing
// bound is open. ok is false when neither bound is set.
func (c *SyncConfig) RecIDRange() (lo, hi int, ok bool) {
	if c.Parameters.RecIDStart != nil {
		lo = *c.Parameters.RecIDStart
	}
	if c.Parameters.RecIDEnd != nil {
		hi = *c.Parameters.RecIDEnd
	}
	return lo, hi, lo != 0 || hi != 0
}

// GetThreshold returns the matching tolerance in microseconds.
func (c *SyncConfig) GetThreshold() int64 {
	if c.Parameters.Threshold == nil {
		return 1000 // default
	}
	return *c.Parameters.Threshold
}

// GetLogLevel returns the log_level value or the default.
func (c *SyncConfig) GetLogLevel() string {
	if c.Parameters.LogLevel == nil || *c.Parameters.LogLevel == "" {
		return "INFO" // default
	}
	return *c.Parameters.LogLevel
}

// GetSyncDurationSec returns the length of the MEA sync preamble in seconds.
func (c *SyncConfig) GetSyncDurationSec() float64 {
	if c.Parameters.SyncDurationSec == nil {
		return 9 // default
	}
	return *c.Parameters.SyncDurationSec
}

// GetPostStimPhase returns the post-stimulus cut-off in seconds, or 0 when
// no cut-off applies.
func (c *SyncConfig) GetPostStimPhase() float64 {
	if c.Parameters.PostStimPhase == nil {
		return 0
	}
	return *c.Parameters.PostStimPhase
}

// GetPauseThreshold returns the pause_threshold value or the default.
func (c *SyncConfig) GetPauseThreshold() int64 {
	if c.Parameters.PauseThreshold == nil {
		return 300_000 // default
	}
	return *c.Parameters.PauseThreshold
}

// GetNeighborhood returns how many recording IDs either side are searched
// when no LED log matches exactly.
func (c *SyncConfig) GetNeighborhood() int {
	if c.Parameters.Neighborhood == nil {
		return 2 // default
	}
	return *c.Parameters.Neighborhood
}

// GetPlots reports whether drift plots are written.
func (c *SyncConfig) GetPlots() bool {
	return c.Parameters.Plots != nil && *c.Parameters.Plots
}

// GetLogDir returns the log directory or the default.
func (c *SyncConfig) GetLogDir() string {
	if c.Paths.LogDir == "" {
		return "./logs" // default
	}
	return c.Paths.LogDir
}
