package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidSenderAddress is returned when a sender address fails
	// Algorand address decoding.
	ErrInvalidSenderAddress = errors.New("invalid sender address")

	// ErrInvalidTransition is returned when a conditional status update
	// affects no rows because the job is not in the expected prior state.
	ErrInvalidTransition = errors.New("job not in expected status for transition")

	// ErrAlreadyDispatched is returned when a dispatch claim loses the race
	// for a running job.
	ErrAlreadyDispatched = errors.New("job already dispatched")

	// ErrInvalidToken is returned when an access token does not match the
	// job it is presented for.
	ErrInvalidToken = errors.New("invalid access token")

	// ErrLedgerUnavailable is returned when the ledger node cannot be
	// reached. Callers may retry.
	ErrLedgerUnavailable = errors.New("ledger node unavailable")

	// ErrIndexerUnavailable is returned when the ledger indexer cannot be
	// reached. Callers may retry.
	ErrIndexerUnavailable = errors.New("ledger indexer unavailable")

	// ErrTxnNotFound is returned when the indexer has not (yet) indexed a
	// transaction. The payment may simply not be confirmed yet.
	ErrTxnNotFound = errors.New("transaction not found on indexer")

	// ErrTxnConstruction is returned when an unsigned transaction group
	// cannot be built.
	ErrTxnConstruction = errors.New("failed to construct transaction group")
)
