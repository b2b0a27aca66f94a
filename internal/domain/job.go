package domain

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Job statuses. A job moves strictly forward:
// queued -> payment_processing -> running -> succeeded | failed.
const (
	JobStatusQueued            = "queued"
	JobStatusPaymentProcessing = "payment_processing"
	JobStatusRunning           = "running"
	JobStatusSucceeded         = "succeeded"
	JobStatusFailed            = "failed"
)

// Job is the unit of paid work tracked by the broker.
type Job struct {
	JobID          string         `db:"job_id"`
	JobInput       string         `db:"job_input"`
	JobInputHash   string         `db:"job_input_hash"`
	SenderAddress  string         `db:"sender_address"`
	ExpectedTxnIDs pq.StringArray `db:"expected_txn_ids"`
	Status         string         `db:"status"`
	Output         sql.NullString `db:"output"`
	ErrorMessage   sql.NullString `db:"error_message"`
	WorkerID       sql.NullString `db:"worker_id"`
	CreatedAt      time.Time      `db:"created_at"`
	StartedAt      sql.NullTime   `db:"started_at"`
	DispatchedAt   sql.NullTime   `db:"dispatched_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
}

// Terminal reports whether the job status can no longer change.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// AccessToken is a single-job bearer credential granting read access to the
// job output. The issuance context is recorded for audit and, optionally,
// enforced at validation time.
type AccessToken struct {
	JobID     string    `db:"job_id"`
	Token     string    `db:"access_token"`
	Address   string    `db:"address"`
	ClientIP  string    `db:"client_ip"`
	UserAgent string    `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}

// JobMessage is the dispatch-queue payload published after a payment has
// been verified.
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
