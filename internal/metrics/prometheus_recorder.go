package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	jobDuration     *prom.HistogramVec
	jobOutcome      *prom.CounterVec
	releaseDuration prom.Histogram
	releaseOutcome  *prom.CounterVec
	deployDuration  *prom.HistogramVec
	deployOutcome   *prom.CounterVec
	jobRetries      *prom.CounterVec
	queueLength     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		jobDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "relbuilder",
			Name:      "job_duration_seconds",
			Help:      "Duration of individual matrix build jobs",
			Buckets:   prom.DefBuckets,
		}, []string{"target"}),
		jobOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "relbuilder",
			Name:      "job_outcomes_total",
			Help:      "Matrix build job outcomes by target and final status",
		}, []string{"target", "outcome"}),
		releaseDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "relbuilder",
			Name:      "release_duration_seconds",
			Help:      "Total release duration across all matrix jobs",
			Buckets:   prom.DefBuckets,
		}),
		releaseOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "relbuilder",
			Name:      "release_outcomes_total",
			Help:      "Release outcomes by final status",
		}, []string{"outcome"}),
		deployDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "relbuilder",
			Name:      "deploy_stage_duration_seconds",
			Help:      "Duration of docs deployment stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		deployOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "relbuilder",
			Name:      "deploy_outcomes_total",
			Help:      "Docs deployment outcomes by final status",
		}, []string{"outcome"}),
		jobRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "relbuilder",
			Name:      "job_retries_total",
			Help:      "Matrix build job retries (transient failures)",
		}, []string{"target"}),
		queueLength: prom.NewGauge(prom.GaugeOpts{
			Namespace: "relbuilder",
			Name:      "queue_length",
			Help:      "Current build queue length",
		}),
	}
	reg.MustRegister(pr.jobDuration, pr.jobOutcome, pr.releaseDuration, pr.releaseOutcome,
		pr.deployDuration, pr.deployOutcome, pr.jobRetries, pr.queueLength)
	return pr
}

func (p *PrometheusRecorder) ObserveJobDuration(target string, d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobOutcome(target string, outcome OutcomeLabel) {
	if p == nil || p.jobOutcome == nil {
		return
	}
	p.jobOutcome.WithLabelValues(target, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveReleaseDuration(d time.Duration) {
	if p == nil || p.releaseDuration == nil {
		return
	}
	p.releaseDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncReleaseOutcome(outcome OutcomeLabel) {
	if p == nil || p.releaseOutcome == nil {
		return
	}
	p.releaseOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveDeployStageDuration(stage string, d time.Duration) {
	if p == nil || p.deployDuration == nil {
		return
	}
	p.deployDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDeployOutcome(outcome OutcomeLabel) {
	if p == nil || p.deployOutcome == nil {
		return
	}
	p.deployOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncJobRetry(target string) {
	if p == nil || p.jobRetries == nil {
		return
	}
	p.jobRetries.WithLabelValues(target).Inc()
}

func (p *PrometheusRecorder) SetQueueLength(n int) {
	if p == nil || p.queueLength == nil {
		return
	}
	p.queueLength.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
