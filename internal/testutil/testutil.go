// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic stream builders used by the
// handshake, anomaly, fixer and pipeline tests.
package testutil

import (
	"encoding/binary"
	"strconv"
	"strings"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// WithIntervals builds a timestamp stream starting at start whose successive
// differences are intervals.
func WithIntervals(start int64, intervals ...int64) []int64 {
	ts := make([]int64, len(intervals)+1)
	ts[0] = start
	for i, d := range intervals {
		ts[i+1] = ts[i] + d
	}
	return ts
}

// RegularStream returns n timestamps spaced step apart from start.
func RegularStream(start, step int64, n int) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = start + int64(i)*step
	}
	return ts
}

// Repeat returns n copies of v.
func Repeat(v int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ArduinoLine renders a pattern line as the LED logger writes it: a leading
// marker byte, the little-endian 32-bit timestamp, a reserved byte, the
// pattern bytes and finally the line-type code.
func ArduinoLine(ts uint32, pattern []int, code int) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], ts)

	fields := []string{"0"}
	for _, v := range b {
		fields = append(fields, strconv.Itoa(int(v)))
	}
	fields = append(fields, "0")
	for _, v := range pattern {
		fields = append(fields, strconv.Itoa(v))
	}
	fields = append(fields, strconv.Itoa(code))
	return strings.Join(fields, ";")
}

// MultiplexLine renders a 16-field Z line carrying two timestamps and an
// index byte.
func MultiplexLine(first, second uint32, index, code int) string {
	var a, b [4]byte
	binary.LittleEndian.PutUint32(a[:], first)
	binary.LittleEndian.PutUint32(b[:], second)

	fields := []string{"0"}
	for _, v := range a {
		fields = append(fields, strconv.Itoa(int(v)))
	}
	for _, v := range b {
		fields = append(fields, strconv.Itoa(int(v)))
	}
	fields = append(fields, strconv.Itoa(index))
	for len(fields) < 15 {
		fields = append(fields, "0")
	}
	fields = append(fields, strconv.Itoa(code))
	return strings.Join(fields, ";")
}

// ArduinoLog renders one pattern line per timestamp, with a fixed pattern and
// the given line-type code.
func ArduinoLog(ts []int64, code int) string {
	var sb strings.Builder
	for i, v := range ts {
		sb.WriteString(ArduinoLine(uint32(v), []int{i % 256, 1, 2}, code))
		sb.WriteByte('\n')
	}
	return sb.String()
}
