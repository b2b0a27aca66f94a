package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/internal/ledger"
)

const (
	testSender   = "NICKXD44FJQJZ2O5QLHS4FQSRX6WHHTSZG6HBQK4TJIOMHNVUSML33XITQ"
	testReceiver = "WAKOSD5LW5FQ5LZZ5AXNWIKGS6QIDMJWCHAMSWV7YRLBD6NYZMLHVNVOOY"
	testAppID    = uint64(749378614)
)

var testSelector = []byte{0x1a, 0x2b, 0x3c, 0x4d}

type fakeJobReader struct {
	jobs map[string]*domain.Job
}

func (f *fakeJobReader) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

type fakeConfirmer struct {
	records map[string]*ledger.TransactionRecord
	err     error
	calls   int
}

func (f *fakeConfirmer) ConfirmTransaction(ctx context.Context, txnID string) (*ledger.TransactionRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[txnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTxnNotFound, txnID)
	}
	return rec, nil
}

func testExpectation() Expectation {
	return Expectation{
		Receiver:       testReceiver,
		Amount:         1_000_000,
		AppID:          testAppID,
		MethodSelector: testSelector,
	}
}

func pendingJob(txnIDs ...string) *domain.Job {
	return &domain.Job{
		JobID:          "job-1",
		SenderAddress:  testSender,
		Status:         domain.JobStatusPaymentProcessing,
		ExpectedTxnIDs: pq.StringArray(txnIDs),
	}
}

func confirmedGroup() map[string]*ledger.TransactionRecord {
	return map[string]*ledger.TransactionRecord{
		"PAY": {
			ID:       "PAY",
			Sender:   testSender,
			Receiver: testReceiver,
			Amount:   1_000_000,
			RawType:  "pay",
		},
		"APP": {
			ID:             "APP",
			Sender:         testSender,
			ApplicationID:  testAppID,
			MethodSelector: testSelector,
			RawType:        "appl",
		},
	}
}

func newTestVerifier(jobs map[string]*domain.Job, confirmer *fakeConfirmer) *Verifier {
	return NewVerifier(&fakeJobReader{jobs: jobs}, confirmer, testExpectation(), slog.Default())
}

func TestVerifier_Verify(t *testing.T) {
	t.Run("accepts the exact confirmed group", func(t *testing.T) {
		v := newTestVerifier(
			map[string]*domain.Job{"job-1": pendingJob("PAY", "APP")},
			&fakeConfirmer{records: confirmedGroup()},
		)

		err := v.Verify(context.Background(), "job-1", []string{"PAY", "APP"})
		require.NoError(t, err)
	})

	t.Run("order does not matter", func(t *testing.T) {
		v := newTestVerifier(
			map[string]*domain.Job{"job-1": pendingJob("PAY", "APP")},
			&fakeConfirmer{records: confirmedGroup()},
		)

		err := v.Verify(context.Background(), "job-1", []string{"APP", "PAY"})
		require.NoError(t, err)
	})

	t.Run("unknown job passes through not found", func(t *testing.T) {
		v := newTestVerifier(map[string]*domain.Job{}, &fakeConfirmer{})

		err := v.Verify(context.Background(), "nope", []string{"PAY"})
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("job without recorded expectations is rejected", func(t *testing.T) {
		v := newTestVerifier(
			map[string]*domain.Job{"job-1": pendingJob()},
			&fakeConfirmer{},
		)

		err := v.Verify(context.Background(), "job-1", []string{"PAY"})
		var verr *VerificationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("set mismatches fail closed", func(t *testing.T) {
		tests := []struct {
			name    string
			claimed []string
		}{
			{name: "subset", claimed: []string{"PAY"}},
			{name: "superset", claimed: []string{"PAY", "APP", "EXTRA"}},
			{name: "duplicate padding", claimed: []string{"PAY", "PAY"}},
			{name: "disjoint", claimed: []string{"X", "Y"}},
			{name: "empty", claimed: nil},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				confirmer := &fakeConfirmer{records: confirmedGroup()}
				v := newTestVerifier(
					map[string]*domain.Job{"job-1": pendingJob("PAY", "APP")},
					confirmer,
				)

				err := v.Verify(context.Background(), "job-1", tt.claimed)

				var verr *VerificationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "transaction set mismatch", verr.Reason)
				// No indexer traffic for a set that cannot match.
				assert.Zero(t, confirmer.calls)
			})
		}
	})

	t.Run("unconfirmed transaction is a terminal rejection", func(t *testing.T) {
		records := confirmedGroup()
		delete(records, "APP")

		v := newTestVerifier(
			map[string]*domain.Job{"job-1": pendingJob("PAY", "APP")},
			&fakeConfirmer{records: records},
		)

		err := v.Verify(context.Background(), "job-1", []string{"PAY", "APP"})

		var verr *VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "not confirmed on chain")
	})

	t.Run("indexer transport failure aborts without rejecting", func(t *testing.T) {
		v := newTestVerifier(
			map[string]*domain.Job{"job-1": pendingJob("PAY", "APP")},
			&fakeConfirmer{err: fmt.Errorf("%w: connection reset", domain.ErrIndexerUnavailable)},
		)

		err := v.Verify(context.Background(), "job-1", []string{"PAY", "APP"})

		require.Error(t, err)
		var verr *VerificationError
		assert.False(t, errors.As(err, &verr))
		assert.ErrorIs(t, err, domain.ErrIndexerUnavailable)
	})

	t.Run("field mismatches are rejected", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(map[string]*ledger.TransactionRecord)
			reason string
		}{
			{
				name: "wrong payment sender",
				mutate: func(m map[string]*ledger.TransactionRecord) {
					m["PAY"].Sender = testReceiver
				},
				reason: "transaction sender does not match job sender",
			},
			{
				name: "wrong receiver",
				mutate: func(m map[string]*ledger.TransactionRecord) {
					m["PAY"].Receiver = testSender
				},
				reason: "payment receiver mismatch",
			},
			{
				name: "short payment",
				mutate: func(m map[string]*ledger.TransactionRecord) {
					m["PAY"].Amount = 999_999
				},
				reason: "payment amount mismatch",
			},
			{
				name: "wrong application",
				mutate: func(m map[string]*ledger.TransactionRecord) {
					m["APP"].ApplicationID = 1
				},
				reason: "application id mismatch",
			},
			{
				name: "wrong method selector",
				mutate: func(m map[string]*ledger.TransactionRecord) {
					m["APP"].MethodSelector = []byte{0xde, 0xad, 0xbe, 0xef}
				},
				reason: "method selector mismatch",
			},
			{
				name: "unexpected transaction type",
				mutate: func(m map[string]*ledger.TransactionRecord) {
					m["PAY"].RawType = "axfer"
				},
				reason: `unexpected transaction type "axfer"`,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				records := confirmedGroup()
				tt.mutate(records)

				v := newTestVerifier(
					map[string]*domain.Job{"job-1": pendingJob("PAY", "APP")},
					&fakeConfirmer{records: records},
				)

				err := v.Verify(context.Background(), "job-1", []string{"PAY", "APP"})

				var verr *VerificationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.reason, verr.Reason)
			})
		}
	})

	t.Run("application call without selector arg is accepted", func(t *testing.T) {
		records := confirmedGroup()
		records["APP"].MethodSelector = nil

		v := newTestVerifier(
			map[string]*domain.Job{"job-1": pendingJob("PAY", "APP")},
			&fakeConfirmer{records: records},
		)

		err := v.Verify(context.Background(), "job-1", []string{"PAY", "APP"})
		require.NoError(t, err)
	})
}
