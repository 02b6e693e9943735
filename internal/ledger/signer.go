package ledger

import "context"

// TransactionSigner is the external wallet-signing capability: given an
// unsigned transaction intent, it returns a transaction identifier or fails
// with one of ErrUserRejected, ErrSigningFailed, or ErrSubmissionFailed.
//
// Signing is user-interactive and blocking from this process's perspective;
// no timeout is imposed here, and a failed call is never retried
// automatically.
type TransactionSigner interface {
	SignAndSubmit(ctx context.Context, intent TxIntent) (txID string, err error)
}
