package metrics

import "time"

// OutcomeLabel enumerates terminal job/release outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for release and deploy metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveJobDuration(target string, d time.Duration)
	IncJobOutcome(target string, outcome OutcomeLabel)
	ObserveReleaseDuration(d time.Duration)
	IncReleaseOutcome(outcome OutcomeLabel)
	ObserveDeployStageDuration(stage string, d time.Duration)
	IncDeployOutcome(outcome OutcomeLabel)
	IncJobRetry(target string)
	SetQueueLength(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveJobDuration(string, time.Duration)         {}
func (NoopRecorder) IncJobOutcome(string, OutcomeLabel)               {}
func (NoopRecorder) ObserveReleaseDuration(time.Duration)             {}
func (NoopRecorder) IncReleaseOutcome(OutcomeLabel)                   {}
func (NoopRecorder) ObserveDeployStageDuration(string, time.Duration) {}
func (NoopRecorder) IncDeployOutcome(OutcomeLabel)                    {}
func (NoopRecorder) IncJobRetry(string)                               {}
func (NoopRecorder) SetQueueLength(int)                               {}
