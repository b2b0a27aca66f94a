package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/internal/metrics"
)

type fakeDispatchStore struct {
	mu sync.Mutex

	jobs      map[string]*domain.Job
	claimed   map[string]string
	completed map[string]string
	failed    map[string]string
	claimErr  error
}

func newFakeDispatchStore(jobs ...*domain.Job) *fakeDispatchStore {
	s := &fakeDispatchStore{
		jobs:      make(map[string]*domain.Job),
		claimed:   make(map[string]string),
		completed: make(map[string]string),
		failed:    make(map[string]string),
	}
	for _, job := range jobs {
		s.jobs[job.JobID] = job
	}
	return s
}

func (s *fakeDispatchStore) ClaimDispatch(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrAlreadyDispatched
	}
	if _, taken := s.claimed[jobID]; taken {
		return nil, domain.ErrAlreadyDispatched
	}
	s.claimed[jobID] = workerID
	return job, nil
}

func (s *fakeDispatchStore) CompleteJob(ctx context.Context, jobID, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[jobID] = output
	return nil
}

func (s *fakeDispatchStore) FailJob(ctx context.Context, jobID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[jobID] = errorMessage
	return nil
}

func (s *fakeDispatchStore) AppendJobLog(ctx context.Context, jobID, level, message string) error {
	return nil
}

type stubProcessor struct {
	output string
	err    error
	panics bool
	calls  int
}

func (p *stubProcessor) Execute(ctx context.Context, input string) (string, error) {
	p.calls++
	if p.panics {
		panic("boom")
	}
	return p.output, p.err
}

func newTestDispatcher(store *fakeDispatchStore, proc *stubProcessor) *Dispatcher {
	return New(&Config{
		Store:      store,
		Processor:  proc,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		WorkerID:   "worker-test",
		JobTimeout: time.Minute,
		Logger:     slog.Default(),
	})
}

func runningJob(jobID, input string) *domain.Job {
	return &domain.Job{
		JobID:    jobID,
		JobInput: input,
		Status:   domain.JobStatusRunning,
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("successful run commits the output", func(t *testing.T) {
		store := newFakeDispatchStore(runningJob("job-1", "hello"))
		proc := &stubProcessor{output: "world"}
		d := newTestDispatcher(store, proc)

		err := d.Dispatch(context.Background(), "job-1")
		require.NoError(t, err)

		assert.Equal(t, 1, proc.calls)
		assert.Equal(t, "world", store.completed["job-1"])
		assert.Empty(t, store.failed)
	})

	t.Run("processor error marks the job failed without surfacing", func(t *testing.T) {
		store := newFakeDispatchStore(runningJob("job-1", "hello"))
		proc := &stubProcessor{err: errors.New("model overloaded")}
		d := newTestDispatcher(store, proc)

		err := d.Dispatch(context.Background(), "job-1")
		require.NoError(t, err)

		assert.Equal(t, "model overloaded", store.failed["job-1"])
		assert.Empty(t, store.completed)
	})

	t.Run("processor panic is contained and recorded", func(t *testing.T) {
		store := newFakeDispatchStore(runningJob("job-1", "hello"))
		proc := &stubProcessor{panics: true}
		d := newTestDispatcher(store, proc)

		err := d.Dispatch(context.Background(), "job-1")
		require.NoError(t, err)

		assert.Contains(t, store.failed["job-1"], "processor panic")
	})

	t.Run("already claimed job is a no-op", func(t *testing.T) {
		store := newFakeDispatchStore(runningJob("job-1", "hello"))
		proc := &stubProcessor{output: "once"}
		d := newTestDispatcher(store, proc)

		require.NoError(t, d.Dispatch(context.Background(), "job-1"))
		require.NoError(t, d.Dispatch(context.Background(), "job-1"))

		assert.Equal(t, 1, proc.calls)
	})

	t.Run("concurrent dispatch executes exactly once", func(t *testing.T) {
		store := newFakeDispatchStore(runningJob("job-1", "hello"))
		proc := &stubProcessor{output: "once"}
		d := newTestDispatcher(store, proc)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, d.Dispatch(context.Background(), "job-1"))
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, proc.calls)
		assert.Equal(t, "once", store.completed["job-1"])
	})

	t.Run("claim failure surfaces to the caller", func(t *testing.T) {
		store := newFakeDispatchStore(runningJob("job-1", "hello"))
		store.claimErr = errors.New("connection refused")
		d := newTestDispatcher(store, &stubProcessor{})

		err := d.Dispatch(context.Background(), "job-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to claim job")
	})
}
