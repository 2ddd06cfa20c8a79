package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository implements repository.JobRepository for testing.
type mockJobRepository struct {
	mu           sync.Mutex
	jobs         []*domain.Job
	dequeueErr   error
	dequeueCalls int
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeueCalls++
	if m.dequeueErr != nil {
		return nil, m.dequeueErr
	}
	for i, j := range m.jobs {
		if j.Status == domain.JobStatusQueued {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return j, nil
		}
	}
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) List(ctx context.Context, status *domain.JobStatus, limit int) ([]*domain.Job, error) {
	return nil, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	return &repository.QueueStats{}, nil
}

func (m *mockJobRepository) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dequeueCalls
}

// mockRunner records the jobs it ran.
type mockRunner struct {
	mu      sync.Mutex
	ran     []domain.JobID
	err     error
	block   bool
	running atomic.Int32
	maxSeen atomic.Int32
}

func (m *mockRunner) RunJob(ctx context.Context, job *domain.Job) error {
	n := m.running.Add(1)
	defer m.running.Add(-1)
	for {
		max := m.maxSeen.Load()
		if n <= max || m.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}

	if m.block {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", domain.ErrCancelled, ctx.Err())
	}
	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ran = append(m.ran, job.ID)
	return m.err
}

func (m *mockRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ran)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func queuedJob(id string) *domain.Job {
	return domain.NewJob(domain.JobID(id), domain.NewDownloadRequest("https://example.com/"+id, "/tmp/"+id))
}

func TestNewPool(t *testing.T) {
	pool := NewPool(Config{Workers: 3, PollInterval: 10 * time.Second}, &mockJobRepository{}, &mockRunner{}, testLogger())

	if pool == nil {
		t.Fatal("pool should not be nil")
	}
	if pool.workers != 3 {
		t.Errorf("workers = %d, want 3", pool.workers)
	}
	if pool.pollInterval != 10*time.Second {
		t.Errorf("pollInterval = %v, want 10s", pool.pollInterval)
	}
}

func TestNewPool_DefaultValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero", Config{}},
		{"negative", Config{Workers: -1, PollInterval: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(tt.cfg, &mockJobRepository{}, &mockRunner{}, testLogger())
			if pool.workers != 2 {
				t.Errorf("workers = %d, want 2", pool.workers)
			}
			if pool.pollInterval != time.Second {
				t.Errorf("pollInterval = %v, want 1s", pool.pollInterval)
			}
		})
	}
}

func TestPool_StartStop(t *testing.T) {
	repo := &mockJobRepository{dequeueErr: domain.ErrNoJobs}
	pool := NewPool(Config{Workers: 2, PollInterval: 20 * time.Millisecond}, repo, &mockRunner{}, testLogger())

	pool.Start()
	waitFor(t, func() bool { return repo.calls() > 0 })

	if err := pool.Stop(2 * time.Second); err != nil {
		t.Errorf("Stop should not error: %v", err)
	}
}

func TestPool_StopTimeout(t *testing.T) {
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Second}, &mockJobRepository{}, &mockRunner{}, testLogger())

	// Simulate a worker that never returns.
	pool.wg.Add(1)
	err := pool.Stop(50 * time.Millisecond)
	pool.wg.Done()

	if !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("expected ErrShutdownTimeout, got %v", err)
	}
}

func TestPool_ProcessesAllJobs(t *testing.T) {
	repo := &mockJobRepository{}
	for i := 0; i < 6; i++ {
		repo.Enqueue(context.Background(), queuedJob(fmt.Sprintf("job-%d", i)))
	}
	runner := &mockRunner{}

	pool := NewPool(Config{Workers: 2, PollInterval: 10 * time.Millisecond}, repo, runner, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	waitFor(t, func() bool { return runner.count() == 6 })

	if max := runner.maxSeen.Load(); max > 2 {
		t.Errorf("ran %d jobs at once with 2 workers", max)
	}
}

func TestPool_RunnerErrorDoesNotStopWorker(t *testing.T) {
	repo := &mockJobRepository{}
	repo.Enqueue(context.Background(), queuedJob("a"))
	repo.Enqueue(context.Background(), queuedJob("b"))
	runner := &mockRunner{err: fmt.Errorf("%w: Video unavailable", domain.ErrFatal)}

	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond}, repo, runner, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	waitFor(t, func() bool { return runner.count() == 2 })
}

func TestPool_StopCancelsRunningJobs(t *testing.T) {
	repo := &mockJobRepository{}
	repo.Enqueue(context.Background(), queuedJob("slow"))
	runner := &mockRunner{block: true}

	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond}, repo, runner, testLogger())
	pool.Start()

	waitFor(t, func() bool { return runner.running.Load() == 1 })

	if err := pool.Stop(2 * time.Second); err != nil {
		t.Errorf("Stop() = %v, running job should observe cancellation", err)
	}
}

func TestPool_DequeueError(t *testing.T) {
	repo := &mockJobRepository{dequeueErr: errors.New("database connection error")}
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond}, repo, &mockRunner{}, testLogger())

	pool.Start()
	waitFor(t, func() bool { return repo.calls() > 1 })

	if err := pool.Stop(time.Second); err != nil {
		t.Errorf("Stop should succeed: %v", err)
	}
}

func TestErrShutdownTimeout(t *testing.T) {
	if ErrShutdownTimeout.Error() != "worker pool shutdown timed out" {
		t.Errorf("unexpected error message: %s", ErrShutdownTimeout.Error())
	}
}
