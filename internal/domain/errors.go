package domain

import "errors"

// Failure kinds of the pricing and sizing engine. Callers classify with
// errors.Is; the wrapped message carries the offending value.
var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrSimulationInvalid   = errors.New("swap simulation invalid")
	ErrStaleOrInvalidState = errors.New("pool state stale or invalid")
	ErrInvalidCandidate    = errors.New("invalid candidate")
	ErrSearchFailed        = errors.New("optimizer search failed")
)

// Collaborator failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrLockHeld         = errors.New("lock already held")
	ErrDecodeInvalidLog = errors.New("invalid log")
	ErrUnsupportedEvent = errors.New("unsupported event")
	ErrConfigMismatch   = errors.New("on-chain config mismatch")
)
