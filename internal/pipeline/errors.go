package pipeline

import (
	"context"
	"errors"

	"github.com/banshee-data/mea-sync/internal/arduino"
	"github.com/banshee-data/mea-sync/internal/fixer"
	"github.com/banshee-data/mea-sync/internal/handshake"
	"github.com/banshee-data/mea-sync/internal/matching"
	"github.com/banshee-data/mea-sync/internal/mea"
)

var (
	// ErrInputMissing covers an absent recording or LED log, and inputs
	// with no usable events.
	ErrInputMissing = errors.New("input missing")
	// ErrNoMatch is returned when a recording has no LED log counterpart.
	ErrNoMatch = matching.ErrNoMatch
)

// Error type labels recorded in the run summary and ledger.
const (
	TypeInputMissing   = "input_missing"
	TypeNoMatch        = "no_match"
	TypeStructural     = "structural"
	TypeReconciliation = "reconciliation"
	TypeCancelled      = "cancelled"
	TypeInternal       = "internal"
)

func inputMissing(err error) bool {
	return errors.Is(err, mea.ErrNotFound) ||
		errors.Is(err, mea.ErrNoEvents) ||
		errors.Is(err, arduino.ErrLogNotFound) ||
		errors.Is(err, arduino.ErrNoValidData)
}

// ErrorType classifies err for the run summary.
func ErrorType(err error) string {
	var rerr *fixer.ReconcileError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return TypeCancelled
	case errors.Is(err, ErrInputMissing):
		return TypeInputMissing
	case errors.Is(err, ErrNoMatch):
		return TypeNoMatch
	case errors.Is(err, handshake.ErrNoHandshake),
		errors.Is(err, handshake.ErrCountMismatch),
		errors.Is(err, handshake.ErrOrder),
		errors.Is(err, handshake.ErrTooFewTimestamps):
		return TypeStructural
	case errors.As(err, &rerr):
		return TypeReconciliation
	}
	return TypeInternal
}
