package anomaly

import (
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/timing"
)

// DefaultPauseThreshold is the interval (µs) above which an unmatched gap is
// treated as a deliberate pause in stimulation.
const DefaultPauseThreshold int64 = 300_000

// Classifier holds the scalar parameters used to label intervals.
type Classifier struct {
	ExpectedDiff   int64
	Threshold      int64
	PauseThreshold int64
}

// NewClassifier returns a Classifier with the default pause threshold.
func NewClassifier(expectedDiff, threshold int64) *Classifier {
	return &Classifier{
		ExpectedDiff:   expectedDiff,
		Threshold:      threshold,
		PauseThreshold: DefaultPauseThreshold,
	}
}

// Detect labels every interval of ts that is not within Threshold of
// ExpectedDiff. Negative intervals are corrected by one counter wrap in the
// working interval slice before the next interval is examined, so split sums
// that reach back over them see the corrected value. ts itself is not
// modified.
func (c *Classifier) Detect(ts []int64) []Record {
	d := timing.Diffs(ts)
	var records []Record

	for i, dt := range d {
		kind, ok := c.classify(d, i, dt)
		if !ok {
			continue
		}
		if kind == KindOverflow {
			d[i] = dt + timing.Wrap
		}
		if kind == KindUnclassified {
			monitoring.Warnf("unclassified anomaly at interval %d: dt=%d", i, dt)
		}
		records = append(records, Record{Index: i, Kind: kind})
	}
	return records
}

// classify applies the rules in priority order. ok is false for a normal
// interval.
func (c *Classifier) classify(d []int64, i int, dt int64) (Kind, bool) {
	switch {
	case dt < 0:
		return KindOverflow, true
	case timing.Within(dt, c.ExpectedDiff, c.Threshold):
		return KindNormal, false
	case timing.Within(dt, 2*c.ExpectedDiff, c.Threshold):
		return KindMerge, true
	case timing.Within(timing.WindowSum(d, i, 2), c.ExpectedDiff, c.Threshold):
		return KindSplit2, true
	case timing.Within(timing.WindowSum(d, i, 3), c.ExpectedDiff, c.Threshold):
		return KindSplit3, true
	case dt > c.PauseThreshold:
		return KindPause, true
	default:
		return KindUnclassified, true
	}
}
