// Package timing holds the interval arithmetic shared by the handshake
// detector, the anomaly classifier and the fixer.
package timing

// Wrap is the period of the Arduino's 32-bit microsecond counter.
const Wrap int64 = 1 << 32

// Diffs returns the first difference of ts. Interval i relates ts[i] and
// ts[i+1], so the result has len(ts)-1 elements (nil for fewer than two).
func Diffs(ts []int64) []int64 {
	if len(ts) < 2 {
		return nil
	}
	d := make([]int64, len(ts)-1)
	for i := range d {
		d[i] = ts[i+1] - ts[i]
	}
	return d
}

// Abs returns the absolute value of v.
func Abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Within reports whether v is no further than tolerance from want.
func Within(v, want, tolerance int64) bool {
	return Abs(v-want) <= tolerance
}

// WindowSum sums d[i:i+n], truncating at the end of d.
func WindowSum(d []int64, i, n int) int64 {
	end := i + n
	if end > len(d) {
		end = len(d)
	}
	var s int64
	for _, v := range d[i:end] {
		s += v
	}
	return s
}
