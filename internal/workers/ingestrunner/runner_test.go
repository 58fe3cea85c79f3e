package ingestrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reclaim/internal/ports"
)

type stubRepo struct {
	mu        sync.Mutex
	queue     []ports.IngestJob
	failed    chan error // ctx.Err() observed inside MarkFailed
	completed chan string
}

func newStubRepo(jobs ...ports.IngestJob) *stubRepo {
	return &stubRepo{
		queue:     jobs,
		failed:    make(chan error, len(jobs)),
		completed: make(chan string, len(jobs)),
	}
}

func (r *stubRepo) Enqueue(ctx context.Context, kind ports.JobKind, itemID string) (string, error) {
	return "", nil
}

func (r *stubRepo) ClaimNext(ctx context.Context) (ports.IngestJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return ports.IngestJob{}, false, nil
	}
	job := r.queue[0]
	r.queue = r.queue[1:]
	return job, true, nil
}

func (r *stubRepo) MarkCompleted(ctx context.Context, jobID string) error {
	r.completed <- jobID
	return nil
}

func (r *stubRepo) MarkFailed(ctx context.Context, jobID, reason string) error {
	r.failed <- ctx.Err()
	return nil
}

type processorFunc func(ctx context.Context, job ports.IngestJob) error

func (f processorFunc) Process(ctx context.Context, job ports.IngestJob) error { return f(ctx, job) }

type passRecorder struct {
	mu       sync.Mutex
	initial  []string
	enhanced []string
}

func (m *passRecorder) InitialPass(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initial = append(m.initial, itemID)
	return nil
}

func (m *passRecorder) EnhancedPass(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enhanced = append(m.enhanced, itemID)
	return nil
}

func TestPassProcessorRoutesByKind(t *testing.T) {
	rec := &passRecorder{}
	p := PassProcessor{Matcher: rec}
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, ports.IngestJob{ID: "j1", Kind: ports.JobInitialPass, ItemID: "i1"}))
	require.NoError(t, p.Process(ctx, ports.IngestJob{ID: "j2", Kind: ports.JobEnhancedPass, ItemID: "i2"}))

	assert.Equal(t, []string{"i1"}, rec.initial)
	assert.Equal(t, []string{"i2"}, rec.enhanced)
}

func TestCompletedJobIsMarked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := newStubRepo(ports.IngestJob{ID: "j1", Kind: ports.JobInitialPass, ItemID: "i1"})

	Run(ctx, repo, processorFunc(func(context.Context, ports.IngestJob) error { return nil }), 1, time.Millisecond)

	select {
	case id := <-repo.completed:
		assert.Equal(t, "j1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never marked completed")
	}
}

func TestFailedJobBookkeepingSurvivesShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := newStubRepo(ports.IngestJob{ID: "j1", Kind: ports.JobInitialPass, ItemID: "i1"})

	// The job is claimed, then shutdown lands mid-process.
	proc := processorFunc(func(c context.Context, job ports.IngestJob) error {
		cancel()
		<-c.Done()
		return c.Err()
	})
	Run(ctx, repo, proc, 1, time.Millisecond)

	select {
	case ctxErr := <-repo.failed:
		assert.NoError(t, ctxErr, "failure bookkeeping must not run on the cancelled worker context")
	case <-time.After(2 * time.Second):
		t.Fatal("job was never marked failed")
	}
}
