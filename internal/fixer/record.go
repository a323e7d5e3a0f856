package fixer

import (
	"fmt"

	"github.com/banshee-data/mea-sync/internal/anomaly"
)

// Phase tags an event that belongs to a handshake marker.
type Phase string

const (
	PhaseNone  Phase = "none"
	PhaseStart Phase = "start_handshake"
	PhaseStop  Phase = "stop_handshake"
)

// Record is one row of the correction log. Nil pointers are written as empty
// cells.
type Record struct {
	OriginalIndex     int
	OriginalTimestamp int64
	OriginalLineType  int
	Kind              anomaly.Kind
	Phase             Phase

	OverflowCorrected bool
	OverflowOffset    int64

	CorrectedTimestamp *int64
	ReferenceIndex     *int
	ReferenceConsumed  int
	ReferenceSkipped   int
	Synthetic          bool

	OriginalDelta  *int64
	CorrectedDelta *int64
}

// ReconcileError reports the original index at which reconciliation could not
// continue.
type ReconcileError struct {
	Index  int
	Kind   anomaly.Kind
	Reason string
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s at index %d: %s", e.Kind, e.Index, e.Reason)
}
