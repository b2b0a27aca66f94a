package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/shared/postgresql"
)

const jobColumns = `
	job_id, job_input, job_input_hash, sender_address, expected_txn_ids,
	status, output, error_message, worker_id,
	created_at, started_at, dispatched_at, completed_at
`

// Store is the single source of truth for jobs, access tokens and the
// append-only audit tables. Every status transition is a conditional update
// guarded on the expected prior status, so concurrent transitions for the
// same job resolve to exactly one winner regardless of process count.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a Store backed by the given PostgreSQL client.
func New(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// CreateJob inserts a new job in status queued.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, job_input, job_input_hash, sender_address,
			expected_txn_ids, status, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, NOW()
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.JobInput,
		job.JobInputHash,
		job.SenderAddress,
		pq.StringArray{},
		domain.JobStatusQueued,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// SetPaymentProcessing records the broker-computed transaction IDs and moves
// the job from queued to payment_processing. The expected IDs are the
// authoritative comparison target for verification; they are written exactly
// once.
func (s *Store) SetPaymentProcessing(ctx context.Context, jobID string, txnIDs []string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    expected_txn_ids = $2
		WHERE job_id = $3
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusPaymentProcessing, pq.StringArray(txnIDs), jobID, domain.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to set payment_processing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrInvalidTransition
	}

	return nil
}

// AuthorizeJob moves a job from payment_processing to running. This is the
// sole gate past payment_processing; it is called only after the payment
// verifier has accepted the claimed transaction set. Concurrent submissions
// race here and at most one succeeds.
func (s *Store) AuthorizeJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    started_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusRunning, jobID, domain.JobStatusPaymentProcessing)
	if err != nil {
		return fmt.Errorf("failed to authorize job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrInvalidTransition
	}

	s.logger.Info("Job authorized",
		slog.String("job_id", jobID),
	)

	return nil
}

// ClaimDispatch marks a running job as dispatched and returns it. The claim
// succeeds at most once per job: the queue consumer and the recovery poller
// both call this, and the loser gets ErrAlreadyDispatched.
func (s *Store) ClaimDispatch(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET dispatched_at = NOW(),
		    worker_id = $1
		WHERE job_id = $2
		  AND status = $3
		  AND dispatched_at IS NULL
		RETURNING job_id, job_input, job_input_hash, sender_address, status, created_at
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query, workerID, jobID, domain.JobStatusRunning).Scan(
		&job.JobID,
		&job.JobInput,
		&job.JobInputHash,
		&job.SenderAddress,
		&job.Status,
		&job.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAlreadyDispatched
		}
		return nil, fmt.Errorf("failed to claim dispatch: %w", err)
	}

	s.logger.Info("Dispatch claimed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return &job, nil
}

// CompleteJob moves a running job to succeeded and stores its output.
func (s *Store) CompleteJob(ctx context.Context, jobID, output string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    output = $2,
		    completed_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusSucceeded, output, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrInvalidTransition
	}

	return nil
}

// FailJob moves a non-terminal job to failed with an error message. failed
// is terminal from any state on unrecoverable error.
func (s *Store) FailJob(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW()
		WHERE job_id = $3
		  AND status NOT IN ($4, $5)
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errorMessage, jobID, domain.JobStatusSucceeded, domain.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrInvalidTransition
	}

	return nil
}

// ListUndispatched returns running jobs whose dispatch claim has not been
// taken, oldest first. The recovery poller feeds these back into the
// dispatcher after a crash or a lost queue message.
func (s *Store) ListUndispatched(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		  AND dispatched_at IS NULL
		ORDER BY started_at ASC
		LIMIT $2
	`

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusRunning, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list undispatched jobs: %w", err)
	}

	return jobs, nil
}

// RecordReceipt appends a payment receipt row. Receipts are audit-only and
// never read back by broker logic.
func (s *Store) RecordReceipt(ctx context.Context, jobID string, txnIDs []string) error {
	query := `
		INSERT INTO payment_receipts (job_id, txn_ids, verified_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.ExecContext(ctx, query, jobID, pq.StringArray(txnIDs))
	if err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}

	return nil
}

// AppendJobLog appends an audit log entry for a job.
func (s *Store) AppendJobLog(ctx context.Context, jobID, level, message string) error {
	query := `
		INSERT INTO job_logs (job_id, level, message, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	_, err := s.db.ExecContext(ctx, query, jobID, level, message)
	if err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}

	return nil
}

// InsertAccessToken persists a newly issued access token.
func (s *Store) InsertAccessToken(ctx context.Context, t *domain.AccessToken) error {
	query := `
		INSERT INTO access_tokens (job_id, access_token, address, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := s.db.ExecContext(ctx, query, t.JobID, t.Token, t.Address, t.ClientIP, t.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to insert access token: %w", err)
	}

	return nil
}

// GetAccessTokenByJob returns the token issued for a job, if any.
func (s *Store) GetAccessTokenByJob(ctx context.Context, jobID string) (*domain.AccessToken, error) {
	var t domain.AccessToken
	query := `
		SELECT job_id, access_token, address, client_ip, user_agent, created_at
		FROM access_tokens
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &t, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return &t, nil
}

// LookupAccessToken returns the token record matching both the job and the
// token value exactly.
func (s *Store) LookupAccessToken(ctx context.Context, jobID, tokenValue string) (*domain.AccessToken, error) {
	var t domain.AccessToken
	query := `
		SELECT job_id, access_token, address, client_ip, user_agent, created_at
		FROM access_tokens
		WHERE job_id = $1
		  AND access_token = $2
	`

	err := s.db.GetContext(ctx, &t, query, jobID, tokenValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to lookup access token: %w", err)
	}

	return &t, nil
}
