package artifact

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sbinet/npyio/npz"
)

// NPZ member names. Patterns are ragged, so they are stored flattened in
// pattern_values with row boundaries in pattern_offsets (len = rows+1).
const (
	memberTimestamps     = "timestamps.npy"
	memberPatternValues  = "pattern_values.npy"
	memberPatternOffsets = "pattern_offsets.npy"
)

// Bundle is the decoded content of a corrected-array NPZ file.
type Bundle struct {
	Timestamps []int64
	Patterns   [][]int
}

// flatten converts ragged patterns to CSR form.
func flatten(patterns [][]int) (values, offsets []int64) {
	offsets = make([]int64, 1, len(patterns)+1)
	for _, p := range patterns {
		for _, v := range p {
			values = append(values, int64(v))
		}
		offsets = append(offsets, int64(len(values)))
	}
	if values == nil {
		values = []int64{}
	}
	return values, offsets
}

// WriteNPZ writes timestamps and patterns as a deflate-compressed NumPy
// archive, the layout numpy.savez_compressed produces.
func WriteNPZ(w io.Writer, b Bundle) error {
	if len(b.Patterns) != len(b.Timestamps) {
		return fmt.Errorf("npz: %d timestamps but %d patterns", len(b.Timestamps), len(b.Patterns))
	}
	values, offsets := flatten(b.Patterns)
	ts := b.Timestamps
	if ts == nil {
		ts = []int64{}
	}

	zw := npz.NewWriter(w)
	for _, m := range []struct {
		name string
		data []int64
	}{
		{memberTimestamps, ts},
		{memberPatternValues, values},
		{memberPatternOffsets, offsets},
	} {
		if err := zw.Write(m.name, m.data); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

// ReadNPZ decodes an archive written by WriteNPZ.
func ReadNPZ(data []byte) (*Bundle, error) {
	zr, err := npz.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var ts, values, offsets []int64
	for _, m := range []struct {
		name string
		dst  *[]int64
	}{
		{memberTimestamps, &ts},
		{memberPatternValues, &values},
		{memberPatternOffsets, &offsets},
	} {
		if err := zr.Read(m.name, m.dst); err != nil {
			return nil, err
		}
	}

	if len(offsets) != len(ts)+1 {
		return nil, fmt.Errorf("npz: %d offsets for %d timestamps", len(offsets), len(ts))
	}
	b := &Bundle{Timestamps: ts, Patterns: make([][]int, len(ts))}
	for i := range ts {
		lo, hi := offsets[i], offsets[i+1]
		if lo > hi || hi > int64(len(values)) {
			return nil, fmt.Errorf("npz: bad offsets at row %d", i)
		}
		row := make([]int, 0, hi-lo)
		for _, v := range values[lo:hi] {
			row = append(row, int(v))
		}
		b.Patterns[i] = row
	}
	return b, nil
}
