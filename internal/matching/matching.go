// Package matching pairs MEA recordings with their LED logs by recording ID
// and reads acquisition parameters out of file names.
package matching

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/monitoring"
)

// DefaultExpectedDiff is the stimulus period assumed when a file name does
// not state one: 62.5 ms.
const DefaultExpectedDiff int64 = 62500

// ErrNoMatch is returned when no LED log can be found for a recording.
var ErrNoMatch = errors.New("no LED log found")

var (
	recIDPattern  = regexp.MustCompile(`RecID[-_]?(\d+)`)
	hsIDPattern   = regexp.MustCompile(`HS\d+`)
	periodPattern = regexp.MustCompile(`(\d+(?:p\d+|\.\d+)?)ms`)
)

// RecID returns the recording number in name.
func RecID(name string) (int, bool) {
	m := recIDPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// HSID returns the handshake protocol tag in name, or "UNKNOWN".
func HSID(name string) string {
	if m := hsIDPattern.FindString(name); m != "" {
		return m
	}
	return "UNKNOWN"
}

// ExpectedDiff reads the stimulus period from name ("62p5ms", "100ms",
// "12.5ms") in microseconds. ok is false when the default was used.
func ExpectedDiff(name string) (int64, bool) {
	m := periodPattern.FindStringSubmatch(name)
	if m == nil {
		monitoring.Warnf("No timestep found in filename %s, default 62.5 ms", name)
		return DefaultExpectedDiff, false
	}
	ms, err := strconv.ParseFloat(strings.Replace(m[1], "p", ".", 1), 64)
	if err != nil {
		return DefaultExpectedDiff, false
	}
	return int64(ms * 1000), true
}

// InRange reports whether name passes the recording ID filter. lo and hi of
// zero are open bounds. With any bound set, names without an ID are rejected.
func InRange(name string, lo, hi int) bool {
	if lo == 0 && hi == 0 {
		return true
	}
	id, ok := RecID(name)
	if !ok {
		return false
	}
	if lo != 0 && id < lo {
		return false
	}
	if hi != 0 && id > hi {
		return false
	}
	return true
}

// hasRecID reports whether name carries exactly the zero-padded ID want
// (not followed by further digits).
func hasRecID(name, want string) bool {
	for _, m := range recIDPattern.FindAllStringSubmatch(name, -1) {
		if m[1] == want {
			return true
		}
	}
	return false
}

func pad(id int) string {
	return fmt.Sprintf("%03d", id)
}

func candidates(names []string, id string) []string {
	var out []string
	for _, n := range names {
		if hasRecID(n, id) {
			out = append(out, n)
		}
	}
	return out
}

// MatchLEDFile finds the LED log in ledDir for recording. An exact ID match
// wins; with several, the first by name is taken. Otherwise IDs within
// neighborhood of the recording's are tried from lowest to highest.
func MatchLEDFile(fsys fsutil.FileSystem, recording, ledDir string, neighborhood int) (string, error) {
	monitoring.Debugf("Matching LED log for %s", recording)
	m := recIDPattern.FindStringSubmatch(recording)
	if m == nil {
		return "", fmt.Errorf("%w: no RecID in %s", ErrNoMatch, recording)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad RecID in %s", ErrNoMatch, recording)
	}
	want := m[1]
	if len(want) < 3 {
		want = pad(id)
	}

	names, err := fsys.ReadDir(ledDir)
	if err != nil {
		return "", fmt.Errorf("list LED dir: %w", err)
	}

	found := candidates(names, want)
	switch {
	case len(found) == 1:
		return filepath.Join(ledDir, found[0]), nil
	case len(found) > 1:
		monitoring.Warnf("Multiple LED logs for RecID %s, taking first match", want)
		return filepath.Join(ledDir, found[0]), nil
	}

	monitoring.Warnf("No LED log found for RecID %s, checking neighbors", want)
	for off := -neighborhood; off <= neighborhood; off++ {
		if n := id + off; n >= 0 {
			if found := candidates(names, pad(n)); len(found) > 0 {
				return filepath.Join(ledDir, found[0]), nil
			}
		}
	}
	return "", fmt.Errorf("%w for RecID-%s or neighbors", ErrNoMatch, want)
}
