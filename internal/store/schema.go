package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id           TEXT PRIMARY KEY,
	job_input        TEXT NOT NULL,
	job_input_hash   TEXT NOT NULL,
	sender_address   TEXT NOT NULL,
	expected_txn_ids TEXT[] NOT NULL DEFAULT '{}',
	status           TEXT NOT NULL,
	output           TEXT,
	error_message    TEXT,
	worker_id        TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at       TIMESTAMPTZ,
	dispatched_at    TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_dispatch
	ON jobs (status, dispatched_at)
	WHERE dispatched_at IS NULL;

CREATE TABLE IF NOT EXISTS access_tokens (
	id           BIGSERIAL PRIMARY KEY,
	job_id       TEXT NOT NULL REFERENCES jobs (job_id),
	access_token TEXT UNIQUE NOT NULL,
	address      TEXT NOT NULL,
	client_ip    TEXT NOT NULL DEFAULT '',
	user_agent   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_access_tokens_job ON access_tokens (job_id);

CREATE TABLE IF NOT EXISTS payment_receipts (
	id          BIGSERIAL PRIMARY KEY,
	job_id      TEXT NOT NULL,
	txn_ids     TEXT[] NOT NULL,
	verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS job_logs (
	id         BIGSERIAL PRIMARY KEY,
	job_id     TEXT NOT NULL,
	level      TEXT NOT NULL DEFAULT 'info',
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the broker tables if they do not exist. Both services call
// this at startup; the statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	s.logger.Info("Database schema up to date")
	return nil
}
