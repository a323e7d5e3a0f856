// Package anomaly classifies per-interval timing anomalies in an LED-log
// timestamp stream against an expected inter-event interval.
package anomaly

// Kind labels an interval. Only the classifier kinds are emitted by Detect;
// KindNormal and KindNotFixed exist for the correction log.
type Kind string

const (
	KindNormal       Kind = "normal"
	KindOverflow     Kind = "overflow"
	KindMerge        Kind = "merge"
	KindSplit2       Kind = "split_2"
	KindSplit3       Kind = "split_3"
	KindPause        Kind = "pause"
	KindUnclassified Kind = "unclassified"
	KindNotFixed     Kind = "not_fixed_due_to_error"
)

// Kinds lists the labels Detect can produce, in classification order.
var Kinds = []Kind{KindOverflow, KindMerge, KindSplit2, KindSplit3, KindPause, KindUnclassified}

// Record is one anomaly at an interval index.
type Record struct {
	Index int
	Kind  Kind
}

// Counts tallies records by kind.
func Counts(records []Record) map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, r := range records {
		counts[r.Kind]++
	}
	return counts
}
