package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PollerConfig holds recovery poller settings.
type PollerConfig struct {
	Store        PollStore
	Dispatcher   Dispatcher
	Interval     time.Duration
	ErrorBackoff time.Duration
	BatchSize    int
	Logger       *slog.Logger
}

// Poller periodically scans for authorized jobs that never reached a
// dispatcher, typically because the process restarted between authorization
// and queue delivery, and feeds them back in. The in-flight set stops the
// same job being launched twice across poll cycles inside one process; the
// store's dispatch claim covers everything else.
type Poller struct {
	store        PollStore
	dispatcher   Dispatcher
	interval     time.Duration
	errorBackoff time.Duration
	batchSize    int
	logger       *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewPoller creates a Poller.
func NewPoller(cfg *PollerConfig) *Poller {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	return &Poller{
		store:        cfg.Store,
		dispatcher:   cfg.Dispatcher,
		interval:     cfg.Interval,
		errorBackoff: cfg.ErrorBackoff,
		batchSize:    batchSize,
		logger:       cfg.Logger,
		inFlight:     make(map[string]struct{}),
	}
}

// Run polls until the context is canceled. A store error backs off to the
// longer interval instead of crashing the loop.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Recovery poller started",
		slog.Duration("interval", p.interval),
		slog.Duration("error_backoff", p.errorBackoff),
	)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Recovery poller stopped")
			return

		case <-timer.C:
			next := p.interval
			if err := p.poll(ctx); err != nil {
				p.logger.Warn("Poll cycle failed, backing off",
					slog.String("error", err.Error()),
				)
				next = p.errorBackoff
			}
			timer.Reset(next)
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	jobs, err := p.store.ListUndispatched(ctx, p.batchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		jobID := job.JobID
		if !p.markInFlight(jobID) {
			continue
		}

		p.logger.Info("Re-dispatching undelivered job",
			slog.String("job_id", jobID),
		)

		go func() {
			defer p.clearInFlight(jobID)
			if err := p.dispatcher.Dispatch(ctx, jobID); err != nil {
				p.logger.Error("Poller dispatch failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	return nil
}

func (p *Poller) markInFlight(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inFlight[jobID]; ok {
		return false
	}
	p.inFlight[jobID] = struct{}{}
	return true
}

func (p *Poller) clearInFlight(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, jobID)
}
