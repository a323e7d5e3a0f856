// Package arduino decodes the LED log written by the stimulation Arduino.
//
// Each line is a semicolon-separated list of byte values whose last field is
// the line-type code. Pattern lines (codes V, W, X and Y) carry a
// little-endian 32-bit microsecond timestamp in fields 1..4 and the LED
// pattern bytes in fields 6..n-2. Z lines carry multiplexing detail for the
// pattern line that follows them.
package arduino

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/banshee-data/mea-sync/internal/config"
	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/monitoring"
)

var (
	// ErrLogNotFound is returned when the LED log file does not exist.
	ErrLogNotFound = errors.New("LED log file not found")
	// ErrNoValidData is returned when a log holds no pattern lines.
	ErrNoValidData = errors.New("no valid LED timestamps in log")
)

// multiplexFields is the exact field count of a well-formed Z line.
const multiplexFields = 16

// Byte-valued field spans [lo, hi) that must hold 0..255.
const (
	patternBytesLo, patternBytesHi     = 1, 5
	multiplexBytesLo, multiplexBytesHi = 1, 10
)

// Codes are the line-type codes from the arduino.bytes config section.
type Codes struct {
	V, W, X, Y, Z int
}

// CodesFromConfig reads the line-type codes out of cfg.
func CodesFromConfig(cfg *config.SyncConfig) Codes {
	b := cfg.Arduino.Bytes
	return Codes{V: b["BYTE_V"], W: b["BYTE_W"], X: b["BYTE_X"], Y: b["BYTE_Y"], Z: b["BYTE_Z"]}
}

func (c Codes) isPattern(code int) bool {
	return code == c.V || code == c.W || code == c.X || code == c.Y
}

// WellFormed reports whether a parsed row would be kept by Parse.
func (c Codes) WellFormed(row []int) bool {
	if len(row) == 0 {
		return false
	}
	code := row[len(row)-1]
	switch {
	case c.isPattern(code):
		return len(row) >= 7 && checkBytes(row, patternBytesLo, patternBytesHi) == nil
	case code == c.Z:
		return len(row) == multiplexFields && checkBytes(row, multiplexBytesLo, multiplexBytesHi) == nil
	}
	return false
}

// checkBytes returns an error naming the first field in row[lo:hi] that is
// not a byte value.
func checkBytes(row []int, lo, hi int) error {
	for i := lo; i < hi; i++ {
		if row[i] < 0 || row[i] > 255 {
			return fmt.Errorf("field %d: value %d out of byte range", i, row[i])
		}
	}
	return nil
}

// MultiplexEntry is one decoded Z line.
type MultiplexEntry struct {
	First  int64
	Second int64
	Index  int
}

// Log is a decoded LED log. Timestamps, Patterns, LineTypes and Multiplex are
// parallel: Multiplex[i] holds the Z lines seen since the previous pattern
// line.
type Log struct {
	Path       string
	Timestamps []int64
	Patterns   [][]int
	LineTypes  []int
	Multiplex  [][]MultiplexEntry
}

// Len returns the number of pattern lines.
func (l *Log) Len() int { return len(l.Timestamps) }

// ParseLine splits a raw log line into integer fields.
func ParseLine(line string) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(line), ";")
	fields := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = v
	}
	return fields, nil
}

// le32 assembles a little-endian uint32 from four byte-valued fields.
func le32(f []int) int64 {
	var b [4]byte
	for i := range b {
		b[i] = byte(f[i])
	}
	return int64(binary.LittleEndian.Uint32(b[:]))
}

// Parse decodes a whole log from r.
func Parse(r io.Reader, codes Codes) (*Log, error) {
	log := &Log{}
	var block []MultiplexEntry

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		row, err := ParseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		code := row[len(row)-1]

		switch {
		case codes.isPattern(code):
			if len(row) < 7 {
				return nil, fmt.Errorf("line %d: pattern line has %d fields", lineNo, len(row))
			}
			if err := checkBytes(row, patternBytesLo, patternBytesHi); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			log.Timestamps = append(log.Timestamps, le32(row[1:5]))
			log.Patterns = append(log.Patterns, append([]int(nil), row[6:len(row)-1]...))
			log.LineTypes = append(log.LineTypes, code)
			log.Multiplex = append(log.Multiplex, block)
			block = nil

		case code == codes.Z:
			if len(row) != multiplexFields {
				monitoring.Debugf("skipping malformed Z line %d: %d fields", lineNo, len(row))
				continue
			}
			if err := checkBytes(row, multiplexBytesLo, multiplexBytesHi); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			block = append(block, MultiplexEntry{
				First:  le32(row[1:5]),
				Second: le32(row[5:9]),
				Index:  row[9],
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read LED log: %w", err)
	}
	if len(log.Timestamps) == 0 {
		return nil, ErrNoValidData
	}
	return log, nil
}

// Load opens path on fsys and decodes it.
func Load(fsys fsutil.FileSystem, path string, codes Codes) (*Log, error) {
	monitoring.Infof("Loading Arduino LED log: %s", path)
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLogNotFound, path)
		}
		return nil, fmt.Errorf("open LED log: %w", err)
	}
	defer f.Close()

	log, err := Parse(f, codes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Path = path
	monitoring.Infof("Extracted %d LED timestamps from %s", log.Len(), path)
	return log, nil
}
