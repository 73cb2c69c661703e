package buildqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/relbuilder/internal/artifact"
	"git.home.luguber.info/inful/relbuilder/internal/matrix"
	"git.home.luguber.info/inful/relbuilder/internal/retry"
)

type fakeBuilder struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, job *Job) (*artifact.Record, error)
}

func (b *fakeBuilder) Build(_ context.Context, job *Job) (*artifact.Record, error) {
	b.mu.Lock()
	b.calls++
	call := b.calls
	b.mu.Unlock()
	return b.fn(call, job)
}

func (b *fakeBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type transientErr struct{ msg string }

func (e *transientErr) Error() string   { return e.msg }
func (e *transientErr) Transient() bool { return true }

func testEntry(name, target string) matrix.Entry {
	return matrix.Entry{Name: name, OS: matrix.RunnerLinux, Target: target}
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", job.ID)
	}
}

func TestQueueCompletesJob(t *testing.T) {
	rec := &artifact.Record{Name: "jj-x86_64-unknown-linux-gnu"}
	builder := &fakeBuilder{fn: func(int, *Job) (*artifact.Record, error) { return rec, nil }}

	q := New(4, 1, builder)
	q.Start(context.Background())
	defer q.Stop(context.Background())

	job := &Job{ID: "job-1", ReleaseID: "rel-1", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")}
	require.NoError(t, q.Enqueue(job))
	waitDone(t, job)

	got, ok := q.Snapshot("job-1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, rec, got.Artifact)
	assert.Empty(t, got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestQueueRetriesTransientErrors(t *testing.T) {
	builder := &fakeBuilder{fn: func(call int, _ *Job) (*artifact.Record, error) {
		if call < 3 {
			return nil, &transientErr{msg: "connection reset"}
		}
		return &artifact.Record{Name: "jj-aarch64-apple-darwin"}, nil
	}}

	q := New(4, 1, builder)
	q.SetRetryPolicy(retry.Policy{Mode: retry.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 3})
	q.Start(context.Background())
	defer q.Stop(context.Background())

	job := &Job{ID: "job-retry", ReleaseID: "rel-1", Entry: testEntry("macos", "aarch64-apple-darwin")}
	require.NoError(t, q.Enqueue(job))
	waitDone(t, job)

	got, _ := q.Snapshot("job-retry")
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Retries)
	assert.Equal(t, 3, builder.callCount())
}

func TestQueueDoesNotRetryPermanentErrors(t *testing.T) {
	builder := &fakeBuilder{fn: func(int, *Job) (*artifact.Record, error) {
		return nil, errors.New("error[E0432]: unresolved import")
	}}

	q := New(4, 1, builder)
	q.SetRetryPolicy(retry.Policy{Mode: retry.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 5})
	q.Start(context.Background())
	defer q.Stop(context.Background())

	job := &Job{ID: "job-perm", ReleaseID: "rel-1", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")}
	require.NoError(t, q.Enqueue(job))
	waitDone(t, job)

	got, _ := q.Snapshot("job-perm")
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "unresolved import")
	assert.Equal(t, 1, builder.callCount())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	builder := &fakeBuilder{fn: func(int, *Job) (*artifact.Record, error) {
		return nil, &transientErr{msg: "timed out"}
	}}

	q := New(4, 1, builder)
	q.SetRetryPolicy(retry.Policy{Mode: retry.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 2})
	q.Start(context.Background())
	defer q.Stop(context.Background())

	job := &Job{ID: "job-exhaust", ReleaseID: "rel-1", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")}
	require.NoError(t, q.Enqueue(job))
	waitDone(t, job)

	got, _ := q.Snapshot("job-exhaust")
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 3, builder.callCount()) // initial attempt + 2 retries
}

func TestQueueCancelReleaseDropsQueuedJobs(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	builder := &fakeBuilder{fn: func(int, *Job) (*artifact.Record, error) {
		started <- struct{}{}
		<-release
		return &artifact.Record{}, nil
	}}

	q := New(8, 1, builder)
	q.Start(context.Background())
	defer q.Stop(context.Background())

	running := &Job{ID: "job-running", ReleaseID: "rel-x", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")}
	queued := &Job{ID: "job-queued", ReleaseID: "rel-x", Entry: testEntry("windows", "x86_64-pc-windows-msvc")}
	require.NoError(t, q.Enqueue(running))

	// Wait for the worker to pick up the first job so it is genuinely
	// running before the release is canceled.
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up job-running")
	}

	require.NoError(t, q.Enqueue(queued))

	q.CancelRelease("rel-x")
	close(release)

	waitDone(t, running)
	waitDone(t, queued)

	got, _ := q.Snapshot("job-queued")
	assert.Equal(t, StatusCanceled, got.Status)

	first, _ := q.Snapshot("job-running")
	assert.Equal(t, StatusCompleted, first.Status)

	// Only the already-running job ever reached the builder.
	assert.Equal(t, 1, builder.callCount())
}

// blockingBuilder parks until the build context is canceled.
type blockingBuilder struct{}

func (blockingBuilder) Build(ctx context.Context, _ *Job) (*artifact.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQueueContextCancelFinishesQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// One worker: the first job occupies it while the second stays queued.
	q := New(8, 1, blockingBuilder{})
	q.Start(ctx)

	first := &Job{ID: "job-first", ReleaseID: "rel-c", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")}
	second := &Job{ID: "job-second", ReleaseID: "rel-c", Entry: testEntry("windows", "x86_64-pc-windows-msvc")}
	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))

	cancel()

	// Both jobs must reach a terminal state even though the second one was
	// never picked up by a worker.
	waitDone(t, first)
	waitDone(t, second)

	got, ok := q.Snapshot("job-second")
	require.True(t, ok)
	assert.Equal(t, StatusCanceled, got.Status)

	q.Stop(context.Background())

	err := q.Enqueue(&Job{ID: "job-late", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
}

func TestQueueFullRejectsEnqueue(t *testing.T) {
	builder := &fakeBuilder{fn: func(int, *Job) (*artifact.Record, error) { return &artifact.Record{}, nil }}
	q := New(1, 1, builder)
	// Not started: the single slot fills and the next enqueue must fail.
	require.NoError(t, q.Enqueue(&Job{ID: "a", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")}))
	err := q.Enqueue(&Job{ID: "b", Entry: testEntry("linux", "x86_64-unknown-linux-gnu")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")
}

func TestQueueEnqueueValidation(t *testing.T) {
	builder := &fakeBuilder{fn: func(int, *Job) (*artifact.Record, error) { return &artifact.Record{}, nil }}
	q := New(4, 1, builder)
	require.Error(t, q.Enqueue(nil))
	require.Error(t, q.Enqueue(&Job{}))
}
