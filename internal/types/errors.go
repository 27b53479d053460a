package types

import "errors"

// Engine error taxonomy. Validation and state errors are returned
// synchronously to the caller; quote and commit errors are transient and
// retried on the next scheduling tick; ErrReconciliationRequired means funds
// moved but the bookkeeping update lost a race, and must reach an operator
// rather than be retried automatically.
var (
	ErrInvalidParameters      = errors.New("invalid strategy parameters")
	ErrNotFound               = errors.New("strategy not found")
	ErrInvalidState           = errors.New("operation not valid for current strategy status")
	ErrConflict               = errors.New("order index conflict")
	ErrQuoteUnavailable       = errors.New("quote unavailable")
	ErrQuoteStale             = errors.New("quote stale")
	ErrCommitFailed           = errors.New("ledger commit failed")
	ErrReconciliationRequired = errors.New("reconciliation required")
)
