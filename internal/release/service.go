// Package release orchestrates a full release: it fans the build matrix out
// over the job queue, waits for every job, and only once all of them have
// succeeded packages the artifacts and writes the release manifest. A single
// failed entry fails the whole release and no manifest is written.
package release

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/relbuilder/internal/artifact"
	"git.home.luguber.info/inful/relbuilder/internal/buildqueue"
	"git.home.luguber.info/inful/relbuilder/internal/config"
	"git.home.luguber.info/inful/relbuilder/internal/eventstore"
	"git.home.luguber.info/inful/relbuilder/internal/gitrepo"
	"git.home.luguber.info/inful/relbuilder/internal/logfields"
	"git.home.luguber.info/inful/relbuilder/internal/matrix"
	"git.home.luguber.info/inful/relbuilder/internal/metrics"
)

// Sink receives release lifecycle events. Implementations may persist them,
// publish them, or both.
type Sink interface {
	Emit(ctx context.Context, releaseID string, eventType eventstore.EventType, payload any) error
}

// Result summarizes a completed release.
type Result struct {
	ReleaseID string            `json:"release_id"`
	Commit    string            `json:"commit"`
	Artifacts []artifact.Record `json:"artifacts"`
	Archives  []string          `json:"archives,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// JobFailure records one failed matrix entry of a failed release.
type JobFailure struct {
	Name   string
	Target string
	Status buildqueue.Status
	Reason string
}

// Error reports a failed release with every failed entry.
type Error struct {
	ReleaseID string
	Failures  []JobFailure
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("release %s failed: %d of matrix entries did not build (%s)",
		e.ReleaseID, len(e.Failures), strings.Join(names, ", "))
}

// Service runs releases against a configured project.
type Service struct {
	cfg      *config.Config
	queue    *buildqueue.Queue
	store    *artifact.Store
	git      *gitrepo.Client
	recorder metrics.Recorder
	sink     Sink
}

// NewService creates a release service. The queue must already be started.
func NewService(cfg *config.Config, queue *buildqueue.Queue, store *artifact.Store, git *gitrepo.Client) *Service {
	return &Service{
		cfg:      cfg,
		queue:    queue,
		store:    store,
		git:      git,
		recorder: metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder (optional).
func (s *Service) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	s.recorder = r
}

// SetSink injects an event sink (optional).
func (s *Service) SetSink(sink Sink) { s.sink = sink }

// Run executes one release for the current project HEAD. It validates the
// matrix, enqueues one job per entry, waits for all of them, then packages
// and records the artifacts. On the first failed job the remaining queued
// jobs of this release are canceled; running jobs finish on their own.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if err := matrix.Validate(s.cfg.Matrix, s.cfg.Project.Binary); err != nil {
		return nil, err
	}

	commit, err := s.git.Head()
	if err != nil {
		return nil, err
	}
	epoch, err := s.git.HeadEpoch()
	if err != nil {
		return nil, err
	}

	releaseID := uuid.NewString()
	start := time.Now()
	slog.Info("Starting release",
		logfields.ReleaseID(releaseID),
		logfields.Commit(commit),
		slog.Int("entries", len(s.cfg.Matrix)))

	s.emit(ctx, releaseID, eventstore.EventReleaseStarted, map[string]any{
		"commit":  commit,
		"entries": len(s.cfg.Matrix),
	})

	jobs := make([]*buildqueue.Job, 0, len(s.cfg.Matrix))
	for _, entry := range s.cfg.Matrix {
		job := &buildqueue.Job{
			ID:        uuid.NewString(),
			ReleaseID: releaseID,
			Entry:     entry,
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.queue.CancelRelease(releaseID)
			s.finish(ctx, releaseID, start, metrics.OutcomeFailed, nil)
			return nil, fmt.Errorf("enqueue %s: %w", entry.Name, err)
		}
		jobs = append(jobs, job)
	}

	failures := s.await(ctx, releaseID, jobs)
	if ctx.Err() != nil {
		s.finish(ctx, releaseID, start, metrics.OutcomeCanceled, nil)
		return nil, ctx.Err()
	}
	if len(failures) > 0 {
		relErr := &Error{ReleaseID: releaseID, Failures: failures}
		s.finish(ctx, releaseID, start, metrics.OutcomeFailed, relErr)
		return nil, relErr
	}

	result, err := s.collect(ctx, releaseID, commit, epoch, jobs)
	if err != nil {
		s.finish(ctx, releaseID, start, metrics.OutcomeFailed, err)
		return nil, err
	}
	result.Duration = time.Since(start)

	s.recorder.ObserveReleaseDuration(result.Duration)
	s.recorder.IncReleaseOutcome(metrics.OutcomeSuccess)
	s.emit(ctx, releaseID, eventstore.EventReleaseCompleted, result)
	slog.Info("Release completed",
		logfields.ReleaseID(releaseID),
		slog.Int("artifacts", len(result.Artifacts)),
		logfields.DurationMS(float64(result.Duration.Milliseconds())))
	return result, nil
}

// await waits for every job to reach a terminal status. On the first failure
// it cancels the release so still-queued entries are dropped, then keeps
// waiting so no job is left running unaccounted.
func (s *Service) await(ctx context.Context, releaseID string, jobs []*buildqueue.Job) []JobFailure {
	var failures []JobFailure
	canceled := false
	for _, job := range jobs {
		select {
		case <-job.Done():
		case <-ctx.Done():
			if !canceled {
				s.queue.CancelRelease(releaseID)
				canceled = true
			}
			<-job.Done()
		}

		snap, ok := s.queue.Snapshot(job.ID)
		if !ok {
			snap = job
		}
		if snap.Status == buildqueue.StatusCompleted {
			continue
		}
		failures = append(failures, JobFailure{
			Name:   snap.Entry.Name,
			Target: snap.Entry.Target,
			Status: snap.Status,
			Reason: snap.Error,
		})
		if !canceled {
			s.queue.CancelRelease(releaseID)
			canceled = true
		}
	}
	return failures
}

// collect gathers the artifact records from the completed jobs, packages
// them when archiving is enabled, and writes the manifest. The manifest is
// the completion marker: it only exists for fully successful releases.
func (s *Service) collect(_ context.Context, releaseID, commit string, epoch int64, jobs []*buildqueue.Job) (*Result, error) {
	epochTime := time.Unix(epoch, 0).UTC()

	records := make([]artifact.Record, 0, len(jobs))
	var archives []string
	for _, job := range jobs {
		snap, ok := s.queue.Snapshot(job.ID)
		if !ok || snap.Artifact == nil {
			return nil, fmt.Errorf("job %s completed without an artifact record", job.ID)
		}
		rec := *snap.Artifact
		records = append(records, rec)

		if s.cfg.Artifacts.Archive {
			path, err := artifact.Archive(rec, epochTime, snap.Entry.OS == matrix.RunnerWindows)
			if err != nil {
				return nil, fmt.Errorf("archive %s: %w", rec.Name, err)
			}
			archives = append(archives, path)
		}
	}

	if err := s.store.WriteManifest(artifact.Manifest{
		ReleaseID: releaseID,
		Binary:    s.cfg.Project.Binary,
		Commit:    commit,
		CreatedAt: epochTime,
		Artifacts: records,
	}); err != nil {
		return nil, err
	}

	return &Result{
		ReleaseID: releaseID,
		Commit:    commit,
		Artifacts: records,
		Archives:  archives,
	}, nil
}

func (s *Service) finish(ctx context.Context, releaseID string, start time.Time, outcome metrics.OutcomeLabel, relErr error) {
	s.recorder.ObserveReleaseDuration(time.Since(start))
	s.recorder.IncReleaseOutcome(outcome)
	payload := map[string]any{}
	if relErr != nil {
		payload["error"] = relErr.Error()
	}
	eventType := eventstore.EventReleaseFailed
	if outcome == metrics.OutcomeCanceled {
		eventType = eventstore.EventReleaseCanceled
	}
	// The terminal event must be recorded even when the run context was
	// canceled.
	s.emit(context.WithoutCancel(ctx), releaseID, eventType, payload)
	if relErr != nil {
		slog.Error("Release failed", logfields.ReleaseID(releaseID), logfields.Error(relErr))
	}
}

func (s *Service) emit(ctx context.Context, releaseID string, typ eventstore.EventType, payload any) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, releaseID, typ, payload); err != nil {
		slog.Warn("Failed to emit release event",
			logfields.ReleaseID(releaseID),
			slog.String("event", string(typ)),
			logfields.Error(err))
	}
}
