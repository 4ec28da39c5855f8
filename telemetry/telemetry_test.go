package telemetry

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopBackendIsDefault(t *testing.T) {
	// Must not panic without a configured backend.
	RecordSource("loaded")
	RecordRows("raw", 10)
	RecordStep("process", nil, time.Millisecond)
	RecordCache(true)
}

func TestPromBackendCounts(t *testing.T) {
	b := NewPromBackend("prices")
	SetBackend(b)
	t.Cleanup(func() { SetBackend(nil) })

	RecordSource("processed")
	RecordSource("processed")
	RecordSource("skipped")
	RecordRows("canonical", 42)
	RecordRows("dropped", 0)
	RecordCache(false)
	RecordStep("process_all", errors.New("boom"), 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(b.counters[MetricSources].WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.counters[MetricSources].WithLabelValues("skipped")))
	assert.Equal(t, 42.0, testutil.ToFloat64(b.counters[MetricRows].WithLabelValues("canonical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.counters[MetricCache].WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.counters[MetricStepTotal].WithLabelValues("failure", "process_all")))
}

func TestPromBackendHandler(t *testing.T) {
	b := NewPromBackend("prices")
	b.IncCounter(MetricRequests, 1, Labels{"route": "/api/kpi", "code": "2xx"})

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "prices_http_requests_total")
}
