package artifact

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/banshee-data/mea-sync/internal/anomaly"
	"github.com/banshee-data/mea-sync/internal/fixer"
	"github.com/banshee-data/mea-sync/internal/handshake"
	"github.com/banshee-data/mea-sync/internal/yline"
)

// CorrectionLogHeader is the column order of the correction log.
var CorrectionLogHeader = []string{
	"original_index", "original_timestamp", "original_linetype",
	"anomaly_type", "handshake_phase",
	"overflow_corrected", "overflow_offset",
	"corrected_timestamp", "reference_index",
	"reference_consumed", "reference_skipped", "synthetic",
	"original_delta", "corrected_delta",
}

func itoa(v int) string  { return strconv.Itoa(v) }
func i64(v int64) string { return strconv.FormatInt(v, 10) }
func btoa(v bool) string { return strconv.FormatBool(v) }

// optional renders nil as an empty cell.
func optional(v *int64) string {
	if v == nil {
		return ""
	}
	return i64(*v)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return itoa(*v)
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCorrectionLog writes one row per correction record.
func WriteCorrectionLog(w io.Writer, log []fixer.Record) error {
	rows := make([][]string, len(log))
	for k, r := range log {
		rows[k] = []string{
			itoa(r.OriginalIndex),
			i64(r.OriginalTimestamp),
			itoa(r.OriginalLineType),
			string(r.Kind),
			string(r.Phase),
			btoa(r.OverflowCorrected),
			i64(r.OverflowOffset),
			optional(r.CorrectedTimestamp),
			optionalInt(r.ReferenceIndex),
			itoa(r.ReferenceConsumed),
			itoa(r.ReferenceSkipped),
			btoa(r.Synthetic),
			optional(r.OriginalDelta),
			optional(r.CorrectedDelta),
		}
	}
	return writeAll(w, CorrectionLogHeader, rows)
}

// StreamPairs labels the handshake pairs found in one stream.
type StreamPairs struct {
	Stream string
	Pairs  []handshake.Pair
}

// WriteHandshakeSummary writes one row per handshake pair. Interval ranges
// are half-open; timestamp ranges are inclusive of the end interval's second
// timestamp.
func WriteHandshakeSummary(w io.Writer, streams ...StreamPairs) error {
	header := []string{
		"stream", "handshake_id", "start_type", "stop_type",
		"start_diff_begin", "start_diff_end", "stop_diff_begin", "stop_diff_end",
		"start_ts_begin", "start_ts_end", "stop_ts_begin", "stop_ts_end",
	}
	var rows [][]string
	for _, s := range streams {
		for k, p := range s.Pairs {
			rows = append(rows, []string{
				s.Stream, itoa(k + 1), p.StartName, p.StopName,
				itoa(p.Start.Begin), itoa(p.Start.End), itoa(p.Stop.Begin), itoa(p.Stop.End),
				itoa(p.Start.Begin), itoa(p.Start.End + 1), itoa(p.Stop.Begin), itoa(p.Stop.End + 1),
			})
		}
	}
	return writeAll(w, header, rows)
}

// WriteAnomalySummary writes the count of each anomaly kind, sorted by kind.
func WriteAnomalySummary(w io.Writer, records []anomaly.Record) error {
	counts := anomaly.Counts(records)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	rows := make([][]string, len(kinds))
	for i, k := range kinds {
		rows[i] = []string{k, itoa(counts[anomaly.Kind(k)])}
	}
	return writeAll(w, []string{"anomaly_type", "count"}, rows)
}

// WriteYLineFindings writes one row per finding.
func WriteYLineFindings(w io.Writer, findings []yline.Finding) error {
	rows := make([][]string, len(findings))
	for i, f := range findings {
		rows[i] = []string{
			itoa(f.HandshakeID), itoa(f.StartRange.Begin), itoa(f.StartRange.End), itoa(f.FirstPostStartIndex),
		}
	}
	return writeAll(w, []string{"handshake_id", "start_diff_begin", "start_diff_end", "first_post_start_ts_index"}, rows)
}
