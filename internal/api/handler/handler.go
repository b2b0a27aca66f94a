package handler

import (
	"context"
	"log/slog"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/internal/ledger"
	"github.com/nickthelegend/0rca-agent-template/internal/metrics"
	"github.com/nickthelegend/0rca-agent-template/internal/token"
)

// JobStore is the slice of the job store the handlers need.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	SetPaymentProcessing(ctx context.Context, jobID string, txnIDs []string) error
	AuthorizeJob(ctx context.Context, jobID string) error
	RecordReceipt(ctx context.Context, jobID string, txnIDs []string) error
	AppendJobLog(ctx context.Context, jobID, level, message string) error
}

// PaymentGateway builds unsigned payment groups.
type PaymentGateway interface {
	BuildPaymentGroup(ctx context.Context, senderAddress, jobID string) (*ledger.PaymentGroup, error)
	PaymentAmount() uint64
}

// PaymentVerifier decides whether claimed transaction IDs pay for a job.
type PaymentVerifier interface {
	Verify(ctx context.Context, jobID string, claimedTxnIDs []string) error
}

// TokenIssuer mints and validates single-job bearer tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, jobID string, ic token.IssueContext) (string, error)
	Validate(ctx context.Context, jobID, tokenValue string, ic token.IssueContext) error
	ExistingForJob(ctx context.Context, jobID string) (string, error)
}

// QueuePublisher hands authorized jobs to the worker service.
type QueuePublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Store    JobStore
	Gateway  PaymentGateway
	Verifier PaymentVerifier
	Tokens   TokenIssuer
	Queue    QueuePublisher
	Metrics  *metrics.Metrics
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	store    JobStore
	gateway  PaymentGateway
	verifier PaymentVerifier
	tokens   TokenIssuer
	queue    QueuePublisher
	metrics  *metrics.Metrics
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		store:    deps.Store,
		gateway:  deps.Gateway,
		verifier: deps.Verifier,
		tokens:   deps.Tokens,
		queue:    deps.Queue,
		metrics:  deps.Metrics,
	}
}
