// Package mea loads the digital-event timestamps of an MEA recording.
//
// The recording stores rising (high) and falling (low) edges of the
// stimulation TTL line as two event entities. The reference stream is the
// two interleaved after the sync preamble is dropped.
package mea

import (
	"errors"
	"fmt"

	"github.com/banshee-data/mea-sync/internal/monitoring"
)

var (
	// ErrNotFound is returned when the recording file does not exist.
	ErrNotFound = errors.New("digital events file not found")
	// ErrNoEvents is returned when no usable events remain after windowing.
	ErrNoEvents = errors.New("no digital events in window")
)

// Events are the raw edge timestamps of one recording, in microseconds.
type Events struct {
	High []int64
	Low  []int64
}

// Loader reads the raw events of a recording.
type Loader interface {
	LoadEvents(path string) (*Events, error)
}

// Window selects the events that belong to the experiment proper.
type Window struct {
	// SyncDurationSec drops every event at or before this time.
	SyncDurationSec float64
	// PostStimSec, when positive, drops every event at or after this time.
	PostStimSec float64
}

// Apply returns the events of ts inside w. ts is not modified.
func (w Window) Apply(ts []int64) []int64 {
	lo := w.SyncDurationSec * 1e6
	hi := w.PostStimSec * 1e6
	out := make([]int64, 0, len(ts))
	for _, v := range ts {
		if float64(v) <= lo {
			continue
		}
		if w.PostStimSec > 0 && float64(v) >= hi {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Interleave merges the high and low edges into one stream, starting with
// whichever edge came first. The two must alternate, so their lengths may
// differ by at most one in favour of the leading stream.
func Interleave(high, low []int64) ([]int64, error) {
	if len(high) == 0 || len(low) == 0 {
		return nil, fmt.Errorf("%w: %d high, %d low", ErrNoEvents, len(high), len(low))
	}
	first, second := high, low
	if high[0] >= low[0] {
		monitoring.Infof("Digital events start with low value")
		first, second = low, high
	}
	if d := len(first) - len(second); d < 0 || d > 1 {
		return nil, fmt.Errorf("unbalanced edges: %d leading, %d trailing", len(first), len(second))
	}

	out := make([]int64, len(first)+len(second))
	for i := range out {
		if i%2 == 0 {
			out[i] = first[i/2]
		} else {
			out[i] = second[i/2]
		}
	}
	return out, nil
}

// LoadTimestamps reads path with l, windows both edge streams and
// interleaves them.
func LoadTimestamps(l Loader, path string, w Window) ([]int64, error) {
	monitoring.Infof("Loading digital events from %s", path)
	ev, err := l.LoadEvents(path)
	if err != nil {
		return nil, err
	}
	high := w.Apply(ev.High)
	low := w.Apply(ev.Low)
	ts, err := Interleave(high, low)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Debugf("digital events: %d high, %d low", len(high), len(low))
	return ts, nil
}
