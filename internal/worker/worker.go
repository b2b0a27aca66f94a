package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/shared/rabbitmq"
)

// Dispatcher executes an authorized job at most once.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// PollStore lists authorized jobs the dispatch queue never delivered.
type PollStore interface {
	ListUndispatched(ctx context.Context, limit int) ([]domain.Job, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Dispatcher    Dispatcher
	PollStore     PollStore
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	PollInterval  time.Duration
	PollBackoff   time.Duration
	PollBatchSize int
}

// Worker consumes the dispatch queue and runs the recovery poller. Each
// queue message and each polled job goes through the shared Dispatcher,
// whose store-level claim keeps the two paths from double-executing a job.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	dispatcher    Dispatcher
	pollStore     PollStore
	workerID      string
	concurrency   int
	prefetchCount int
	pollInterval  time.Duration
	pollBackoff   time.Duration
	pollBatchSize int
	jobsChan      chan *domain.JobMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		dispatcher:    cfg.Dispatcher,
		pollStore:     cfg.PollStore,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		pollInterval:  cfg.PollInterval,
		pollBackoff:   cfg.PollBackoff,
		pollBatchSize: cfg.PollBatchSize,
		jobsChan:      make(chan *domain.JobMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes the dispatch queue and runs the poller until the context
// is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	poller := NewPoller(&PollerConfig{
		Store:        w.pollStore,
		Dispatcher:   w.dispatcher,
		Interval:     w.pollInterval,
		ErrorBackoff: w.pollBackoff,
		BatchSize:    w.pollBatchSize,
		Logger:       w.logger,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		poller.Run(ctx)
	}()

	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
