package daemon

import (
	"context"

	"git.home.luguber.info/inful/relbuilder/internal/buildqueue"
	"git.home.luguber.info/inful/relbuilder/internal/eventstore"
	"git.home.luguber.info/inful/relbuilder/internal/release"
)

// EventRouter fans release events out to the persistent event store and,
// when configured, the NATS publisher. The store is authoritative: a store
// failure fails the emit, a publish failure does not.
type EventRouter struct {
	store     *eventstore.Store
	publisher release.Sink
}

// NewEventRouter creates a router. Either destination may be nil.
func NewEventRouter(store *eventstore.Store, publisher release.Sink) *EventRouter {
	return &EventRouter{store: store, publisher: publisher}
}

// Emit implements release.Sink.
func (r *EventRouter) Emit(ctx context.Context, releaseID string, eventType eventstore.EventType, payload any) error {
	if r.store != nil {
		if err := r.store.Append(ctx, releaseID, eventType, payload); err != nil {
			return err
		}
	}
	if r.publisher != nil {
		return r.publisher.Emit(ctx, releaseID, eventType, payload)
	}
	return nil
}

type jobEventPayload struct {
	JobID      string `json:"job_id"`
	BuildName  string `json:"build_name"`
	Target     string `json:"target"`
	Worker     string `json:"worker,omitempty"`
	Error      string `json:"error,omitempty"`
	Retries    int    `json:"retries,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// EmitJobStarted implements buildqueue.EventEmitter.
func (r *EventRouter) EmitJobStarted(ctx context.Context, job *buildqueue.Job, workerID string) error {
	return r.Emit(ctx, job.ReleaseID, eventstore.EventJobStarted, jobEventPayload{
		JobID:     job.ID,
		BuildName: job.Entry.Name,
		Target:    job.Entry.Target,
		Worker:    workerID,
	})
}

// EmitJobCompleted implements buildqueue.EventEmitter.
func (r *EventRouter) EmitJobCompleted(ctx context.Context, job *buildqueue.Job) error {
	return r.Emit(ctx, job.ReleaseID, eventstore.EventJobCompleted, jobEventPayload{
		JobID:      job.ID,
		BuildName:  job.Entry.Name,
		Target:     job.Entry.Target,
		Retries:    job.Retries,
		DurationMS: job.Duration.Milliseconds(),
	})
}

// EmitJobFailed implements buildqueue.EventEmitter.
func (r *EventRouter) EmitJobFailed(ctx context.Context, job *buildqueue.Job, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return r.Emit(ctx, job.ReleaseID, eventstore.EventJobFailed, jobEventPayload{
		JobID:      job.ID,
		BuildName:  job.Entry.Name,
		Target:     job.Entry.Target,
		Error:      msg,
		Retries:    job.Retries,
		DurationMS: job.Duration.Milliseconds(),
	})
}
