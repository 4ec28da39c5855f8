// Package telemetry records operational counters from ingestion, caching and
// the HTTP API behind a small backend interface. The default backend is a
// no-op, so callers never need to check whether metrics are enabled.
package telemetry

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op one.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Metric names shared by every backend.
const (
	MetricSources      = "ingest_sources_total"
	MetricRows         = "ingest_rows_total"
	MetricStepTotal    = "step_total"
	MetricStepDuration = "step_duration_seconds"
	MetricCache        = "cache_lookups_total"
	MetricRequests     = "http_requests_total"
)

// RecordSource counts one raw source by outcome ("loaded", "processed",
// "skipped", "failed").
func RecordSource(status string) {
	current().IncCounter(MetricSources, 1, Labels{"status": status})
}

// RecordRows counts rows by kind ("raw", "dropped", "canonical").
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(MetricRows, float64(n), Labels{"kind": kind})
}

// RecordStep measures latency and success/failure of a pipeline step.
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(MetricStepTotal, 1, lbls)
	b.ObserveHistogram(MetricStepDuration, d.Seconds(), lbls)
}

// RecordCache counts a cache lookup.
func RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	current().IncCounter(MetricCache, 1, Labels{"result": result})
}

// RecordRequest counts an HTTP request by route and status code class.
func RecordRequest(route, code string) {
	current().IncCounter(MetricRequests, 1, Labels{"route": route, "code": code})
}
