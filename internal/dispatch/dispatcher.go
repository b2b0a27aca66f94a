package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/internal/metrics"
	"github.com/nickthelegend/0rca-agent-template/internal/processor"
)

// Store is the slice of the job store the dispatcher needs.
type Store interface {
	ClaimDispatch(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID, output string) error
	FailJob(ctx context.Context, jobID, errorMessage string) error
	AppendJobLog(ctx context.Context, jobID, level, message string) error
}

// Config holds dispatcher dependencies.
type Config struct {
	Store      Store
	Processor  processor.Processor
	Metrics    *metrics.Metrics
	WorkerID   string
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Dispatcher runs authorized jobs through the external processor exactly
// once and commits the result. The dispatch claim in the store is the
// at-most-once guard; both the queue consumer and the recovery poller call
// Dispatch and the loser is a no-op.
type Dispatcher struct {
	store      Store
	processor  processor.Processor
	metrics    *metrics.Metrics
	workerID   string
	jobTimeout time.Duration
	logger     *slog.Logger
}

// New creates a Dispatcher.
func New(cfg *Config) *Dispatcher {
	return &Dispatcher{
		store:      cfg.Store,
		processor:  cfg.Processor,
		metrics:    cfg.Metrics,
		workerID:   cfg.WorkerID,
		jobTimeout: cfg.JobTimeout,
		logger:     cfg.Logger,
	}
}

// Dispatch claims the job, executes the processor with the job input, and
// commits succeeded-with-output or failed. Processor errors are recorded on
// the job and never propagate as process faults; only claim and store
// failures surface to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) error {
	job, err := d.store.ClaimDispatch(ctx, jobID, d.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyDispatched) {
			d.logger.Debug("Dispatch skipped, job already claimed",
				slog.String("job_id", jobID),
			)
			d.metrics.JobsDispatched.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}

	d.logger.Info("Dispatching job",
		slog.String("job_id", jobID),
		slog.String("worker_id", d.workerID),
	)

	jobCtx, cancel := context.WithTimeout(ctx, d.jobTimeout)
	defer cancel()

	start := time.Now()
	output, perr := d.execute(jobCtx, job.JobInput)
	d.metrics.JobDuration.Observe(time.Since(start).Seconds())

	if perr != nil {
		d.logger.Error("Processor failed",
			slog.String("job_id", jobID),
			slog.String("error", perr.Error()),
		)
		d.metrics.JobsDispatched.WithLabelValues("failed").Inc()

		if err := d.store.FailJob(ctx, jobID, perr.Error()); err != nil {
			d.logger.Error("Failed to mark job failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		_ = d.store.AppendJobLog(ctx, jobID, "error", "processor failed: "+perr.Error())
		return nil
	}

	if err := d.store.CompleteJob(ctx, jobID, output); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	_ = d.store.AppendJobLog(ctx, jobID, "info", "job completed")

	d.metrics.JobsDispatched.WithLabelValues("succeeded").Inc()
	d.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// execute runs the processor, converting a panic into an error so a single
// bad job cannot take down the worker pool or the poller.
func (d *Dispatcher) execute(ctx context.Context, input string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	return d.processor.Execute(ctx, input)
}
