// Package handshake locates the marker interval patterns that bracket each
// stimulus window in a timestamp stream and pairs start markers with stop
// markers.
package handshake

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/timing"
)

var (
	// ErrTooFewTimestamps is returned when a stream has no intervals.
	ErrTooFewTimestamps = errors.New("at least two timestamps are required")
	// ErrNoHandshake is returned when either table matched nothing.
	ErrNoHandshake = errors.New("no handshake pattern found")
	// ErrCountMismatch is returned when start and stop matches differ in number.
	ErrCountMismatch = errors.New("start and stop handshake counts differ")
	// ErrOrder is returned when a paired start does not end before its stop.
	ErrOrder = errors.New("start handshake does not precede stop handshake")
)

// Table maps a pattern name to its expected interval signature.
type Table map[string][]int64

// Range is a half-open range of interval indices. Interval range [Begin, End)
// spans timestamp indices Begin..End inclusive.
type Range struct {
	Begin int
	End   int
}

// Len returns the number of intervals in r.
func (r Range) Len() int { return r.End - r.Begin }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Begin, r.End) }

// Pair is the k-th start match paired with the k-th stop match.
type Pair struct {
	Start     Range
	Stop      Range
	StartName string
	StopName  string
}

// Result is the outcome of a successful Find.
type Result struct {
	Pairs      []Pair
	StartNames []string
	StopNames  []string
}

// Detector searches a stream for start and stop patterns.
type Detector struct {
	Start Table
	Stop  Table
}

// NewDetector returns a Detector for the given pattern tables.
func NewDetector(start, stop Table) *Detector {
	return &Detector{Start: start, Stop: stop}
}

type match struct {
	name string
	r    Range
}

type signature struct {
	name string
	sig  []int64
}

// ordered returns the signatures of t longest first, ties broken by name.
func (t Table) ordered() []signature {
	sigs := make([]signature, 0, len(t))
	for name, sig := range t {
		if len(sig) == 0 {
			continue
		}
		sigs = append(sigs, signature{name: name, sig: sig})
	}
	sort.Slice(sigs, func(i, j int) bool {
		if len(sigs[i].sig) != len(sigs[j].sig) {
			return len(sigs[i].sig) > len(sigs[j].sig)
		}
		return sigs[i].name < sigs[j].name
	})
	return sigs
}

// Find matches both tables against the intervals of ts and pairs the results.
// The stop table is scanned first; start matches may not overlap any index
// claimed by a stop match or by an earlier start match.
func (d *Detector) Find(ts []int64, tolerance int64) (*Result, error) {
	if len(ts) < 2 {
		return nil, ErrTooFewTimestamps
	}
	intervals := timing.Diffs(ts)

	stopCov := newCoverage(len(intervals))
	stops := scan(intervals, d.Stop, tolerance, stopCov)

	startCov := newCoverage(len(intervals))
	starts := scan(intervals, d.Start, tolerance, startCov, stopCov)

	if len(starts) == 0 || len(stops) == 0 {
		return nil, fmt.Errorf("%w: %d start and %d stop matches", ErrNoHandshake, len(starts), len(stops))
	}
	if len(starts) != len(stops) {
		return nil, fmt.Errorf("%w: %d start vs %d stop", ErrCountMismatch, len(starts), len(stops))
	}

	byBegin := func(m []match) {
		sort.Slice(m, func(i, j int) bool { return m[i].r.Begin < m[j].r.Begin })
	}
	byBegin(starts)
	byBegin(stops)

	res := &Result{
		Pairs:      make([]Pair, len(starts)),
		StartNames: make([]string, len(starts)),
		StopNames:  make([]string, len(stops)),
	}
	for k := range starts {
		s, e := starts[k], stops[k]
		if s.r.End >= e.r.Begin {
			return nil, fmt.Errorf("%w: pair %d start %s (%s) stop %s (%s)",
				ErrOrder, k+1, s.r, s.name, e.r, e.name)
		}
		res.Pairs[k] = Pair{Start: s.r, Stop: e.r, StartName: s.name, StopName: e.name}
		res.StartNames[k] = s.name
		res.StopNames[k] = e.name
	}

	monitoring.Debugf("handshake: %d pairs found in %d intervals", len(res.Pairs), len(intervals))
	return res, nil
}

// scan matches every signature of t against intervals, claiming matched
// ranges in own. A candidate is rejected if any of its indices is already
// claimed in own or in any of the blocked bitmaps.
func scan(intervals []int64, t Table, tolerance int64, own *coverage, blocked ...*coverage) []match {
	var found []match
	for _, s := range t.ordered() {
		L := len(s.sig)
		for i := 0; i+L <= len(intervals); i++ {
			r := Range{Begin: i, End: i + L}
			if own.anyClaimed(r) || anyBlocked(blocked, r) {
				continue
			}
			if !matchesAt(intervals, i, s.sig, tolerance) {
				continue
			}
			own.claim(r)
			found = append(found, match{name: s.name, r: r})
			monitoring.Debugf("handshake: %s matched at %s", s.name, r)
		}
	}
	return found
}

func anyBlocked(blocked []*coverage, r Range) bool {
	for _, b := range blocked {
		if b.anyClaimed(r) {
			return true
		}
	}
	return false
}

func matchesAt(intervals []int64, i int, sig []int64, tolerance int64) bool {
	for j, want := range sig {
		if !timing.Within(intervals[i+j], want, tolerance) {
			return false
		}
	}
	return true
}
