package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/normalize"
)

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveStage(StageGenerate, time.Second)
		r.Since(StageExecute, time.Now())
		r.Shape(normalize.ShapeRaw)
		r.Failure(errors.New("x"))
		r.CacheFallback(true)
		r.Limitation("aggregation")
	})
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	r := New()

	r.Shape(normalize.ShapeEntities)
	r.Shape(normalize.ShapeEntities)
	r.Shape(normalize.ShapeEmpty)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.shapes.WithLabelValues("entities")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.shapes.WithLabelValues("empty")))

	r.Failure(failure.Generation(failure.ErrQuotaExceeded))
	r.Failure(failure.Execution(failure.ErrUnavailable))
	r.Failure(errors.New("plain"))
	r.Failure(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("generation", "quota_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("execution", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("unknown", "unknown")))

	r.CacheFallback(true)
	r.CacheFallback(false)
	r.CacheFallback(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("miss")))

	r.Limitation("negative")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.limitations.WithLabelValues("negative")))
}

func TestStageHistogram(t *testing.T) {
	r := New()
	r.ObserveStage(StageGenerate, 30*time.Millisecond)
	r.ObserveStage(StageExecute, 2*time.Second)

	assert.Equal(t, 2, testutil.CollectAndCount(r.stages))
}

func TestHandlerExposition(t *testing.T) {
	r := New()
	r.Shape(normalize.ShapeAggregation)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `clausegraph_results_total{shape="aggregation"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
