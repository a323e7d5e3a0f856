// Package trim cuts a timestamp stream down to its stimulus windows, the
// regions between each paired start and stop handshake.
package trim

import (
	"fmt"

	"github.com/banshee-data/mea-sync/internal/anomaly"
	"github.com/banshee-data/mea-sync/internal/handshake"
)

// bounds clamps [lo, hi) to [0, n). An inverted range is empty.
func bounds(lo, hi, n int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// Windows returns ts[p.Start.End:p.Stop.Begin] for each pair, concatenated in
// pair order. The result never aliases ts.
func Windows(ts []int64, pairs []handshake.Pair) []int64 {
	out, _ := WithIndexMap(ts, pairs)
	return out
}

// WithIndexMap is Windows plus, for each output element, its index in ts.
func WithIndexMap(ts []int64, pairs []handshake.Pair) ([]int64, []int) {
	var (
		out []int64
		idx []int
	)
	for _, p := range pairs {
		lo, hi := bounds(p.Start.End, p.Stop.Begin, len(ts))
		out = append(out, ts[lo:hi]...)
		for i := lo; i < hi; i++ {
			idx = append(idx, i)
		}
	}
	return out, idx
}

// Remap translates anomaly indices from trimmed coordinates to original
// coordinates using the index map from WithIndexMap.
func Remap(records []anomaly.Record, indexMap []int) ([]anomaly.Record, error) {
	out := make([]anomaly.Record, len(records))
	for i, r := range records {
		if r.Index < 0 || r.Index >= len(indexMap) {
			return nil, fmt.Errorf("anomaly index %d outside trimmed stream of %d", r.Index, len(indexMap))
		}
		out[i] = anomaly.Record{Index: indexMap[r.Index], Kind: r.Kind}
	}
	return out, nil
}
