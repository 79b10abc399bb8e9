// Package metrics exposes Prometheus instrumentation for the query pipeline.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/normalize"
)

const namespace = "clausegraph"

// Pipeline stages observed by ObserveStage.
const (
	StageGenerate  = "generate"
	StageExecute   = "execute"
	StageNormalize = "normalize"
	StageAnalyze   = "analyze"
	StageRetrieve  = "retrieve"
)

// Recorder owns a private registry so tests and embedders never collide
// with the global one.
type Recorder struct {
	reg         *prometheus.Registry
	stages      *prometheus.HistogramVec
	shapes      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	limitations *prometheus.CounterVec
}

// New builds a Recorder with runtime collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each query pipeline stage.",
			Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		shapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Normalized results by shape.",
		}, []string{"shape"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Pipeline failures by stage and kind.",
		}, []string{"stage", "kind"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fallbacks_total",
			Help:      "Cached-result fallbacks after a failure, by outcome.",
		}, []string{"outcome"}),
		limitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limitations_total",
			Help:      "Similarity-search limitation verdicts by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.stages, r.shapes, r.failures, r.fallbacks, r.limitations,
	)
	return r
}

// ObserveStage records how long stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// Since is ObserveStage measured from start.
func (r *Recorder) Since(stage string, start time.Time) {
	r.ObserveStage(stage, time.Since(start))
}

// Shape counts a normalized result.
func (r *Recorder) Shape(s normalize.Shape) {
	if r == nil {
		return
	}
	r.shapes.WithLabelValues(string(s)).Inc()
}

// Failure counts a classified pipeline error. Unclassified errors are
// counted under an "unknown" stage.
func (r *Recorder) Failure(err error) {
	if r == nil || err == nil {
		return
	}
	stage := "unknown"
	switch {
	case errors.Is(err, failure.ErrGeneration):
		stage = string(failure.StageGeneration)
	case errors.Is(err, failure.ErrExecution):
		stage = string(failure.StageExecution)
	}
	r.failures.WithLabelValues(stage, string(failure.KindOf(err))).Inc()
}

// CacheFallback counts a fallback attempt and whether a cached result was
// served.
func (r *Recorder) CacheFallback(hit bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.fallbacks.WithLabelValues(outcome).Inc()
}

// Limitation counts a limitation verdict.
func (r *Recorder) Limitation(typ string) {
	if r == nil {
		return
	}
	r.limitations.WithLabelValues(typ).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
