package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mea-sync/internal/report"
)

// FileRecord is one row of sync_files.
type FileRecord struct {
	ID            string
	RunID         string
	Recording     string
	HSID          string
	LEDLog        string
	Status        string
	ErrorType     string
	Error         string
	Partial       bool
	Events        int
	Anomalies     int
	YLineFindings int
	NPZPath       string
	LogPath       string
	ProcessedAt   time.Time
}

// RunRecord is one row of sync_runs.
type RunRecord struct {
	ID         string
	Version    string
	ConfigPath string
	StartedAt  time.Time
	FinishedAt *time.Time
	Cancelled  bool
	Processed  int
	Failed     int
}

const timeLayout = time.RFC3339Nano

// StartRun inserts the run row. The summary's RunID is assigned when empty.
func (db *DB) StartRun(ctx context.Context, s *report.RunSummary) error {
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	return retryOnBusy(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sync_runs (run_id, version, config_path, started_at)
			VALUES (?, ?, ?, ?)`,
			s.RunID, s.Version, s.ConfigPath, s.StartedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert run %s: %w", s.RunID, err)
		}
		return nil
	})
}

// RecordFile stores the outcome of one recording and returns the row ID.
func (db *DB) RecordFile(ctx context.Context, runID string, o report.FileOutcome, at time.Time) (string, error) {
	id := uuid.NewString()
	anomalies := 0
	for kind, n := range o.Anomalies {
		if kind != "normal" {
			anomalies += n
		}
	}
	npz, logPath := artifactPaths(o.Artifacts)
	err := retryOnBusy(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sync_files (
				file_id, run_id, recording, hs_id, led_log, status, error_type, error,
				partial, events, anomalies, yline_findings, npz_path, log_path, processed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, runID, o.File, o.HSID, o.LEDLog, o.Status, o.ErrorType, o.Error,
			o.Partial, o.Events, anomalies, o.YLineFindings, npz, logPath,
			at.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert file %s: %w", o.File, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun stamps the end time and counters of a run.
func (db *DB) FinishRun(ctx context.Context, s *report.RunSummary) error {
	return retryOnBusy(func() error {
		res, err := db.ExecContext(ctx, `
			UPDATE sync_runs
			SET finished_at = ?, cancelled = ?, processed = ?, failed = ?
			WHERE run_id = ?`,
			s.FinishedAt.UTC().Format(timeLayout), s.Cancelled, s.Processed, s.Failed, s.RunID)
		if err != nil {
			return fmt.Errorf("update run %s: %w", s.RunID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update run %s: %w", s.RunID, sql.ErrNoRows)
		}
		return nil
	})
}

const runColumns = `run_id, version, config_path, started_at, finished_at, cancelled, processed, failed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*RunRecord, error) {
	var (
		r          RunRecord
		configPath sql.NullString
		started    string
		finished   sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Version, &configPath, &started, &finished, &r.Cancelled, &r.Processed, &r.Failed); err != nil {
		return nil, err
	}
	r.ConfigPath = configPath.String
	var err error
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

// GetRun loads a run row.
func (db *DB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	r, err := scanRun(db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs WHERE run_id = ?`, runID))
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, most recent first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListFiles returns the file rows of a run in insertion order.
func (db *DB) ListFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT file_id, run_id, recording, hs_id, led_log, status, error_type, error,
			partial, events, anomalies, yline_findings, npz_path, log_path, processed_at
		FROM sync_files WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list files for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var (
			f                                           FileRecord
			hsID, ledLog, errType, errMsg, npz, logPath sql.NullString
			processed                                   string
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.Recording, &hsID, &ledLog, &f.Status, &errType, &errMsg,
			&f.Partial, &f.Events, &f.Anomalies, &f.YLineFindings, &npz, &logPath, &processed); err != nil {
			return nil, err
		}
		f.HSID, f.LEDLog, f.ErrorType, f.Error = hsID.String, ledLog.String, errType.String, errMsg.String
		f.NPZPath, f.LogPath = npz.String, logPath.String
		if f.ProcessedAt, err = time.Parse(timeLayout, processed); err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func artifactPaths(artifacts []string) (npz, correctionLog string) {
	for _, a := range artifacts {
		switch {
		case strings.HasSuffix(a, ".npz") && npz == "":
			npz = a
		case strings.Contains(a, "_correction_log") && correctionLog == "":
			correctionLog = a
		}
	}
	return npz, correctionLog
}
