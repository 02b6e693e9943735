package ledger

import "errors"

// Error definitions shared across the ledger boundary.
var (
	// ErrSourceUnavailable covers node/indexer network failures and
	// missing applications. Read paths recover from it locally; it is
	// never surfaced as a hard failure by the reader.
	ErrSourceUnavailable = errors.New("ledger source unavailable")

	// Signer capability outcomes. Each must reach the initiating caller
	// distinctly; none is retried automatically.
	ErrUserRejected     = errors.New("user rejected signing request")
	ErrSigningFailed    = errors.New("transaction signing failed")
	ErrSubmissionFailed = errors.New("transaction submission failed")

	// ErrValidation rejects malformed intents before any network call.
	ErrValidation = errors.New("validation error")

	// ErrNotOwner rejects fund-moving intents for a non-owner sender. A
	// delegated agent identity may only trigger rebalances.
	ErrNotOwner = errors.New("sender is not the position owner")

	ErrAmountNegative = errors.New("amount is negative")
	ErrNotFinite      = errors.New("value is not finite")
)
