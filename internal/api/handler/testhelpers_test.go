package handler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	stats    *repository.QueueStats
	statsErr error
	jobs     map[domain.JobID]*domain.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
		jobs:  make(map[domain.JobID]*domain.Job),
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) List(ctx context.Context, status *domain.JobStatus, limit int) ([]*domain.Job, error) {
	var out []*domain.Job
	for _, j := range m.jobs {
		if status == nil || j.Status == *status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// mockPinger is a test implementation of Pinger.
type mockPinger struct {
	err error
}

func (m mockPinger) Ping(ctx context.Context) error {
	return m.err
}

// stubDownloader completes every request at a fixed path.
type stubDownloader struct {
	path string
}

func (s stubDownloader) Download(ctx context.Context, req domain.DownloadRequest, sink domain.EventSink) (*domain.Result, error) {
	out := domain.Success(s.path, domain.Metadata{Attempt: 1, Media: &domain.MediaInfo{Duration: 12, Width: 1280, Height: 720}})
	return &domain.Result{
		Request:  req,
		Phase:    domain.PhaseSucceeded,
		Outcome:  out,
		Attempts: []domain.AttemptRecord{{Attempt: 1, Outcome: out}},
	}, nil
}

// newTestService builds a download service on an in-memory queue and a
// temporary history database.
func newTestService(t *testing.T) (*service.DownloadService, string) {
	t.Helper()
	dir := t.TempDir()
	history, err := repository.OpenHistory(dir + "/history.db")
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	t.Cleanup(func() { history.Close() })

	svc := service.NewDownloadService(
		repository.NewInMemoryJobRepository(),
		history,
		stubDownloader{path: dir + "/video.mp4"},
		config.StorageConfig{DownloadDir: dir},
		testLogger(),
	)
	return svc, dir
}
