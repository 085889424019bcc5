// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the ingestion pipeline.
//
// A narrow Backend interface (counters plus duration-style observations) is
// backed by a global, pluggable implementation that defaults to a no-op, so
// metric calls are always safe even when no real backend is configured.
// Concrete systems (Prometheus Pushgateway, Datadog) are isolated in
// subpackages; the rest of the codebase depends only on this package.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordFile counts one completed input file by outcome.
func RecordFile(ok bool) {
	status := "processed"
	if !ok {
		status = "failed"
	}
	backend.IncCounter("cadastral_files_total", 1, Labels{"status": status})
}

// RecordRows records the outcome of one flushed table batch at row
// granularity.
func RecordRows(table string, inserted, skipped int64) {
	if inserted > 0 {
		backend.IncCounter("cadastral_rows_total", float64(inserted), Labels{
			"table": table,
			"kind":  "inserted",
		})
	}
	if skipped > 0 {
		backend.IncCounter("cadastral_rows_total", float64(skipped), Labels{
			"table": table,
			"kind":  "skipped",
		})
	}
}

// RecordBatchFailure counts a table batch that could not be written.
func RecordBatchFailure(table string) {
	backend.IncCounter("cadastral_batch_failures_total", 1, Labels{"table": table})
}

// RecordStep measures latency + success/failure of a pipeline stage
// (setup, scan, parse, drain).
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	backend.IncCounter("cadastral_step_total", 1, lbls)
	backend.ObserveHistogram("cadastral_step_duration_seconds", d.Seconds(), lbls)
}
