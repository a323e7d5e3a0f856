// Package fixer rebuilds an MEA-referenced timestamp for every LED-log event,
// using the anomaly labels to decide how many reference events each LED event
// consumes.
package fixer

import (
	"errors"
	"fmt"

	"github.com/banshee-data/mea-sync/internal/anomaly"
	"github.com/banshee-data/mea-sync/internal/handshake"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/timing"
)

// Input is everything Fix needs. Anomalies are in original LED-log index
// coordinates. ArduinoTS is normalised in place.
type Input struct {
	ArduinoTS   []int64
	Patterns    [][]int
	LineTypes   []int
	ReferenceTS []int64
	Anomalies   []anomaly.Record
	Pairs       []handshake.Pair
}

// Result holds the corrected stream and its correction log. When Partial is
// set, Timestamps and Patterns cover only the events before Err.Index and Log
// carries placeholder rows from there on.
type Result struct {
	Timestamps        []int64
	Patterns          [][]int
	Log               []Record
	ReferenceConsumed int
	Partial           bool
	Err               *ReconcileError
}

// Fix normalises counter wraps in in.ArduinoTS, then walks the LED events with
// a cursor into in.ReferenceTS. A ReconcileError is returned together with a
// partial Result; any other error means the input was unusable and Result is
// nil.
func Fix(in Input) (*Result, error) {
	n := len(in.ArduinoTS)
	if len(in.Patterns) != n || len(in.LineTypes) != n {
		return nil, fmt.Errorf("length mismatch: %d timestamps, %d patterns, %d line types",
			n, len(in.Patterns), len(in.LineTypes))
	}
	labels := make(map[int]anomaly.Kind, len(in.Anomalies))
	for _, a := range in.Anomalies {
		if a.Index < 0 || a.Index >= n {
			return nil, fmt.Errorf("anomaly %s index %d outside stream of %d", a.Kind, a.Index, n)
		}
		labels[a.Index] = a.Kind
	}

	fired, offsets := normaliseOverflow(in.ArduinoTS)
	phases := tagPhases(n, in.Pairs)

	r := &reconciler{in: in, labels: labels, fired: fired, offsets: offsets, phases: phases}
	err := r.run()

	res := &Result{
		Timestamps:        r.timestamps,
		Patterns:          r.patterns,
		Log:               foldDeltas(r.log),
		ReferenceConsumed: r.consumed,
	}
	if err != nil {
		var rerr *ReconcileError
		if !errors.As(err, &rerr) {
			return nil, err
		}
		res.Partial = true
		res.Err = rerr
		monitoring.Errorf("reconciliation stopped at index %d of %d: %v", rerr.Index, n, rerr)
		return res, rerr
	}
	monitoring.Infof("reconciled %d events against %d reference events", len(res.Timestamps), r.consumed)
	return res, nil
}

// normaliseOverflow adds a multiple of 2^32 to every timestamp after a raw
// decrease. The returned slices give, per index, whether a wrap was detected
// there and the cumulative offset applied.
func normaliseOverflow(ts []int64) ([]bool, []int64) {
	fired := make([]bool, len(ts))
	offsets := make([]int64, len(ts))
	var offset int64
	for i := range ts {
		raw := ts[i]
		if i > 0 && raw+offset < ts[i-1] {
			offset += timing.Wrap
			fired[i] = true
		}
		ts[i] = raw + offset
		offsets[i] = offset
	}
	return fired, offsets
}

// tagPhases marks timestamp indices b..e inclusive for each handshake range.
// Within a pair the stop tag is applied after the start tag.
func tagPhases(n int, pairs []handshake.Pair) []Phase {
	phases := make([]Phase, n)
	for i := range phases {
		phases[i] = PhaseNone
	}
	mark := func(r handshake.Range, p Phase) {
		for i := r.Begin; i <= r.End && i < n; i++ {
			if i >= 0 {
				phases[i] = p
			}
		}
	}
	for _, p := range pairs {
		mark(p.Start, PhaseStart)
		mark(p.Stop, PhaseStop)
	}
	return phases
}

type reconciler struct {
	in      Input
	labels  map[int]anomaly.Kind
	fired   []bool
	offsets []int64
	phases  []Phase

	cursor     int
	consumed   int
	timestamps []int64
	patterns   [][]int
	log        []Record
}

func (r *reconciler) base(i int, kind anomaly.Kind) Record {
	return Record{
		OriginalIndex:     i,
		OriginalTimestamp: r.in.ArduinoTS[i],
		OriginalLineType:  r.in.LineTypes[i],
		Kind:              kind,
		Phase:             r.phases[i],
		OverflowCorrected: r.fired[i],
		OverflowOffset:    r.offsets[i],
	}
}

func (r *reconciler) emit(rec Record, ts int64) {
	rec.CorrectedTimestamp = &ts
	r.timestamps = append(r.timestamps, ts)
	r.patterns = append(r.patterns, r.in.Patterns[rec.OriginalIndex])
	r.log = append(r.log, rec)
}

// take emits event i at the reference cursor and advances it by step.
func (r *reconciler) take(i int, kind anomaly.Kind, step int) {
	ref := r.cursor
	rec := r.base(i, kind)
	rec.ReferenceIndex = &ref
	rec.ReferenceConsumed = 1
	rec.ReferenceSkipped = step - 1
	r.emit(rec, r.in.ReferenceTS[ref])
	r.cursor += step
	r.consumed += step
}

func (r *reconciler) run() error {
	n := len(r.in.ArduinoTS)
	i := 0
	for i < n {
		kind, labelled := r.labels[i]
		if !labelled {
			kind = anomaly.KindNormal
		}
		if err := r.check(i, kind); err != nil {
			r.fillPlaceholders(i)
			return err
		}

		switch kind {
		case anomaly.KindMerge:
			r.take(i, kind, 2)
			i++
		case anomaly.KindSplit2, anomaly.KindSplit3:
			parts := 2
			if kind == anomaly.KindSplit3 {
				parts = 3
			}
			r.split(i, kind, parts)
			i += parts
		default:
			// normal, overflow, pause and unclassified map 1:1.
			r.take(i, kind, 1)
			i++
		}
	}
	return nil
}

// split emits parts-1 synthetic events extrapolated from the previous
// reference timestamp using the LED deltas, then the last part at the cursor.
func (r *reconciler) split(i int, kind anomaly.Kind, parts int) {
	ts := r.in.ArduinoTS
	synthetic := r.in.ReferenceTS[r.cursor-1]
	for j := 0; j < parts-1; j++ {
		synthetic += ts[i+j] - ts[i+j-1]
		rec := r.base(i+j, kind)
		rec.Synthetic = true
		r.emit(rec, synthetic)
	}
	r.take(i+parts-1, kind, 1)
}

// check verifies that event i can be reconciled as kind without reading
// outside either stream.
func (r *reconciler) check(i int, kind anomaly.Kind) error {
	n := len(r.in.ArduinoTS)
	fail := func(format string, args ...interface{}) error {
		return &ReconcileError{Index: i, Kind: kind, Reason: fmt.Sprintf(format, args...)}
	}

	switch kind {
	case anomaly.KindSplit2, anomaly.KindSplit3:
		parts := 2
		if kind == anomaly.KindSplit3 {
			parts = 3
		}
		if i == 0 {
			return fail("no preceding event")
		}
		if i+parts-1 >= n {
			return fail("needs %d following events, stream ends at %d", parts-1, n-1)
		}
		if r.cursor == 0 {
			return fail("no preceding reference event")
		}
	}
	if r.cursor >= len(r.in.ReferenceTS) {
		return fail("reference stream exhausted after %d events", len(r.in.ReferenceTS))
	}
	return nil
}

// fillPlaceholders appends a not_fixed row for every event from k on.
func (r *reconciler) fillPlaceholders(k int) {
	for i := k; i < len(r.in.ArduinoTS); i++ {
		r.log = append(r.log, r.base(i, anomaly.KindNotFixed))
	}
}

// foldDeltas fills the local deltas, carrying the previous original and
// corrected timestamps from row to row.
func foldDeltas(log []Record) []Record {
	type carry struct {
		original  *int64
		corrected *int64
	}
	var prev carry
	for k := range log {
		rec := &log[k]
		orig := rec.OriginalTimestamp
		if prev.original != nil {
			d := orig - *prev.original
			rec.OriginalDelta = &d
		}
		if prev.corrected != nil && rec.CorrectedTimestamp != nil {
			d := *rec.CorrectedTimestamp - *prev.corrected
			rec.CorrectedDelta = &d
		}
		prev = carry{original: &orig, corrected: rec.CorrectedTimestamp}
	}
	return log
}
