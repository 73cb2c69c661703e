// Package buildqueue runs matrix build jobs on a bounded worker pool. Jobs
// are isolated: each one builds a single matrix entry and shares no state
// with the others.
package buildqueue

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/relbuilder/internal/artifact"
	"git.home.luguber.info/inful/relbuilder/internal/logfields"
	"git.home.luguber.info/inful/relbuilder/internal/matrix"
	"git.home.luguber.info/inful/relbuilder/internal/metrics"
	"git.home.luguber.info/inful/relbuilder/internal/retry"
)

// Status represents the current status of a build job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Job is a single matrix build job.
type Job struct {
	ID          string        `json:"id"`
	ReleaseID   string        `json:"release_id"`
	Entry       matrix.Entry  `json:"entry"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Retries     int           `json:"retries,omitempty"`
	Error       string        `json:"error,omitempty"`

	Artifact *artifact.Record `json:"artifact,omitempty"`

	// Internal processing
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} { return j.done }

// Builder executes one build job and returns the stored artifact.
type Builder interface {
	Build(ctx context.Context, job *Job) (*artifact.Record, error)
}

// EventEmitter abstracts event emission for job lifecycle events, so the
// queue does not depend on a daemon implementation.
type EventEmitter interface {
	EmitJobStarted(ctx context.Context, job *Job, workerID string) error
	EmitJobCompleted(ctx context.Context, job *Job) error
	EmitJobFailed(ctx context.Context, job *Job, jobErr error) error
}

// transienter is implemented by errors that may succeed on retry.
type transienter interface{ Transient() bool }

// Queue manages the queue of build jobs.
type Queue struct {
	jobs    chan *Job
	workers int
	maxSize int

	mu       sync.RWMutex
	active   map[string]*Job
	history  []*Job
	canceled map[string]struct{} // releases whose queued jobs are dropped
	draining bool                // workers are gone, reject new jobs

	historySize int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	builder     Builder

	retryPolicy retry.Policy
	recorder    metrics.Recorder
	emitter     EventEmitter
}

// New creates a new build queue with the specified size, worker count, and builder.
func New(maxSize, workers int, builder Builder) *Queue {
	if maxSize <= 0 {
		maxSize = 32
	}
	if workers <= 0 {
		workers = 2
	}
	if builder == nil {
		panic("buildqueue.New: builder is required")
	}
	return &Queue{
		jobs:        make(chan *Job, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Job),
		canceled:    make(map[string]struct{}),
		historySize: 50,
		stopChan:    make(chan struct{}),
		builder:     builder,
		retryPolicy: retry.DefaultPolicy(),
		recorder:    metrics.NoopRecorder{},
	}
}

// SetRetryPolicy updates the retry policy (call once after config load).
func (q *Queue) SetRetryPolicy(p retry.Policy) { q.retryPolicy = p }

// SetRecorder injects a metrics recorder (optional).
func (q *Queue) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	q.recorder = r
}

// SetEventEmitter injects a job event emitter (optional).
func (q *Queue) SetEventEmitter(e EventEmitter) { q.emitter = e }

// Start begins processing jobs with the configured number of workers.
func (q *Queue) Start(ctx context.Context) {
	slog.Info("Starting build queue", "workers", q.workers, "max_size", q.maxSize)
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop gracefully shuts down the queue, canceling active jobs.
func (q *Queue) Stop(_ context.Context) {
	q.stopOnce.Do(func() { close(q.stopChan) })

	q.mu.Lock()
	for _, job := range q.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	q.mu.Unlock()

	q.wg.Wait()
	// Covers queues that were never started: their workers cannot drain.
	q.drainPending()
}

// drainPending marks the queue as draining and finishes every job still
// parked in the channel as canceled, closing their done channels. Safe to
// call from multiple workers; after the first call Enqueue rejects new jobs.
func (q *Queue) drainPending() {
	q.mu.Lock()
	q.draining = true
	var pending []*Job
	for {
		select {
		case job := <-q.jobs:
			if job != nil {
				pending = append(pending, job)
			}
		default:
			q.mu.Unlock()
			for _, job := range pending {
				q.finishJob(job, StatusCanceled, nil)
			}
			return
		}
	}
}

// Length returns the current queue length.
func (q *Queue) Length() int { return len(q.jobs) }

// Enqueue adds a new build job to the queue.
func (q *Queue) Enqueue(job *Job) error {
	if job == nil {
		return stdErrors.New("job cannot be nil")
	}
	if job.ID == "" {
		return stdErrors.New("job ID is required")
	}
	job.Status = StatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.done = make(chan struct{})

	// The draining check and the channel send share the mutex with
	// drainPending, so a job is either rejected here or guaranteed to be
	// picked up by a worker or the drain.
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		close(job.done)
		return stdErrors.New("build queue is stopped")
	}
	select {
	case q.jobs <- job:
		q.mu.Unlock()
		q.recorder.SetQueueLength(q.Length())
		return nil
	default:
		q.mu.Unlock()
		close(job.done)
		return stdErrors.New("build queue is full")
	}
}

// CancelRelease drops queued jobs belonging to a release. Running jobs are
// not interrupted; they finish and report their own outcome.
func (q *Queue) CancelRelease(releaseID string) {
	q.mu.Lock()
	q.canceled[releaseID] = struct{}{}
	q.mu.Unlock()
}

// Snapshot returns a copy of a job (active first, then history).
func (q *Queue) Snapshot(id string) (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if j, ok := q.active[id]; ok {
		cp := *j
		return &cp, true
	}
	for _, j := range q.history {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}

func (q *Queue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()
	// A worker never exits with jobs still parked in the channel: their done
	// channels would stay open and callers waiting on them would hang.
	defer q.drainPending()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			if job == nil {
				continue
			}
			q.recorder.SetQueueLength(q.Length())
			if q.releaseCanceled(job.ReleaseID) {
				q.finishJob(job, StatusCanceled, nil)
				continue
			}
			q.processJob(ctx, job, workerID)
		}
	}
}

func (q *Queue) releaseCanceled(releaseID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.canceled[releaseID]
	return ok
}

func (q *Queue) processJob(ctx context.Context, job *Job, workerID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	defer cancel()

	start := time.Now()
	q.mu.Lock()
	job.StartedAt = &start
	job.Status = StatusRunning
	q.active[job.ID] = job
	q.mu.Unlock()

	if q.emitter != nil {
		if err := q.emitter.EmitJobStarted(jobCtx, job, workerID); err != nil {
			slog.Warn("Failed to emit JobStarted event", logfields.JobID(job.ID), logfields.Error(err))
		}
	}

	err := q.executeWithRetry(jobCtx, job)

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		if jobCtx.Err() != nil {
			status = StatusCanceled
		}
	}
	q.finishJob(job, status, err)
	q.emitCompletion(ctx, job, err)
}

func (q *Queue) finishJob(job *Job, status Status, err error) {
	end := time.Now()
	q.mu.Lock()
	job.CompletedAt = &end
	if job.StartedAt != nil {
		job.Duration = end.Sub(*job.StartedAt)
	}
	job.Status = status
	if err != nil {
		job.Error = err.Error()
	}
	delete(q.active, job.ID)
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
	q.mu.Unlock()

	q.recorder.ObserveJobDuration(job.Entry.Target, job.Duration)
	switch status {
	case StatusCompleted:
		q.recorder.IncJobOutcome(job.Entry.Target, metrics.OutcomeSuccess)
	case StatusCanceled:
		q.recorder.IncJobOutcome(job.Entry.Target, metrics.OutcomeCanceled)
	case StatusFailed:
		q.recorder.IncJobOutcome(job.Entry.Target, metrics.OutcomeFailed)
	}

	if job.done != nil {
		close(job.done)
	}
}

func (q *Queue) emitCompletion(ctx context.Context, job *Job, err error) {
	if q.emitter == nil {
		return
	}
	if err != nil {
		if emitErr := q.emitter.EmitJobFailed(ctx, job, err); emitErr != nil {
			slog.Warn("Failed to emit JobFailed event", logfields.JobID(job.ID), logfields.Error(emitErr))
		}
		return
	}
	if emitErr := q.emitter.EmitJobCompleted(ctx, job); emitErr != nil {
		slog.Warn("Failed to emit JobCompleted event", logfields.JobID(job.ID), logfields.Error(emitErr))
	}
}

// executeWithRetry runs the builder, retrying transient failures under the
// queue's retry policy. Deterministic failures (compile errors) fail fast.
func (q *Queue) executeWithRetry(ctx context.Context, job *Job) error {
	policy := q.retryPolicy
	if policy.Initial <= 0 {
		policy = retry.DefaultPolicy()
	}

	retries := 0
	for {
		rec, err := q.builder.Build(ctx, job)
		if err == nil {
			job.Artifact = rec
			job.Retries = retries
			return nil
		}

		var tr transienter
		if !stdErrors.As(err, &tr) || !tr.Transient() || retries >= policy.MaxRetries {
			job.Retries = retries
			return err
		}

		retries++
		q.recorder.IncJobRetry(job.Entry.Target)
		delay := policy.Delay(retries)
		slog.Warn("Transient build error, retrying",
			logfields.JobID(job.ID),
			logfields.Target(job.Entry.Target),
			slog.Int("retry", retries),
			slog.Int("max_retries", policy.MaxRetries),
			slog.Duration("delay", delay),
			logfields.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
