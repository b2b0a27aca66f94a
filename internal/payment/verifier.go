package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/internal/ledger"
)

// VerificationError is a terminal rejection of a payment submission. The
// client must resubmit with correct transaction IDs; nothing about the job
// changes.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "payment verification failed: " + e.Reason
}

// Expectation is the fixed payment shape every job must satisfy.
type Expectation struct {
	Receiver       string
	Amount         uint64
	AppID          uint64
	MethodSelector []byte
}

// JobReader loads jobs for verification.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// Confirmer re-derives confirmed transactions from the ledger indexer.
type Confirmer interface {
	ConfirmTransaction(ctx context.Context, txnID string) (*ledger.TransactionRecord, error)
}

// Verifier decides whether a claimed set of transaction IDs pays for a job.
// The decision is all-or-nothing: the claimed set must equal the expected
// set exactly, and every member must be confirmed on-chain with matching
// sender, receiver and amount (payment) or application ID and method
// selector (application call). Any indexer failure aborts the attempt.
type Verifier struct {
	store     JobReader
	confirmer Confirmer
	expect    Expectation
	logger    *slog.Logger
}

// NewVerifier creates a Verifier for the given payment expectation.
func NewVerifier(store JobReader, confirmer Confirmer, expect Expectation, logger *slog.Logger) *Verifier {
	return &Verifier{
		store:     store,
		confirmer: confirmer,
		expect:    expect,
		logger:    logger,
	}
}

// Verify checks the claimed transaction IDs for a job. A nil return is the
// sole permission to move the job from payment_processing to running.
func (v *Verifier) Verify(ctx context.Context, jobID string, claimedTxnIDs []string) error {
	job, err := v.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if len(job.ExpectedTxnIDs) == 0 {
		return &VerificationError{Reason: "no expected transactions recorded for job"}
	}

	// Exact set comparison. Subsets and supersets fail closed, and the
	// rejection does not identify which ID is off.
	if !sameSet(claimedTxnIDs, job.ExpectedTxnIDs) {
		v.logger.Warn("Claimed transaction set mismatch",
			slog.String("job_id", jobID),
			slog.Int("claimed", len(claimedTxnIDs)),
			slog.Int("expected", len(job.ExpectedTxnIDs)),
		)
		return &VerificationError{Reason: "transaction set mismatch"}
	}

	for _, txnID := range claimedTxnIDs {
		rec, err := v.confirmer.ConfirmTransaction(ctx, txnID)
		if err != nil {
			if errors.Is(err, domain.ErrTxnNotFound) {
				return &VerificationError{Reason: fmt.Sprintf("transaction %s not confirmed on chain", txnID)}
			}
			// Transport failure: abort the whole attempt, caller may retry.
			return fmt.Errorf("confirm transaction %s: %w", txnID, err)
		}

		if rec.Sender != job.SenderAddress {
			return &VerificationError{Reason: "transaction sender does not match job sender"}
		}

		switch rec.RawType {
		case "pay":
			if rec.Receiver != v.expect.Receiver {
				return &VerificationError{Reason: "payment receiver mismatch"}
			}
			if rec.Amount != v.expect.Amount {
				return &VerificationError{Reason: "payment amount mismatch"}
			}
		case "appl":
			if rec.ApplicationID != v.expect.AppID {
				return &VerificationError{Reason: "application id mismatch"}
			}
			if len(rec.MethodSelector) > 0 && !bytes.Equal(rec.MethodSelector, v.expect.MethodSelector) {
				return &VerificationError{Reason: "method selector mismatch"}
			}
		default:
			return &VerificationError{Reason: fmt.Sprintf("unexpected transaction type %q", rec.RawType)}
		}
	}

	v.logger.Info("Payment verified",
		slog.String("job_id", jobID),
		slog.Int("txn_count", len(claimedTxnIDs)),
	)

	return nil
}

func sameSet(claimed, expected []string) bool {
	if len(claimed) != len(expected) {
		return false
	}

	seen := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}

	for _, id := range expected {
		if _, ok := seen[id]; !ok {
			return false
		}
	}

	return true
}
