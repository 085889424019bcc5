// Package datadog implements a DogStatsD backend for the metrics package.
//
// It adapts the generic metrics.Backend interface to Datadog by:
//
//   - Rendering the pipeline's label sets (table/kind, step/status) as
//     "key:value" tags in a stable order.
//   - Emitting counters as DogStatsD counts and histograms as DogStatsD
//     histograms, so the agent does the aggregation.
//   - Attaching a namespace and a fixed tag set to every metric at client
//     construction time rather than per call.
//
// All Datadog-specific dependencies stay inside this package so the rest
// of the project depends only on the metrics.Backend abstraction.
package datadog

import (
	"fmt"
	"sort"

	"github.com/KhanhD1nh/export-data/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Every sample is forwarded to the agent. The run is a short batch job, so
// client-side sampling would only make small counts unreliable.
const sampleAll = 1

// Config describes how to reach the Datadog agent.
type Config struct {
	// Addr is the DogStatsD endpoint, "host:port" for UDP or
	// "unix:///path/to/socket" for a socket.
	Addr string

	// Namespace is prefixed onto every metric name, e.g. "export_data.".
	Namespace string

	// GlobalTags are attached to every metric, e.g. "job:daily-ingest".
	GlobalTags []string
}

// Backend sends pipeline metrics to a DogStatsD endpoint.
type Backend struct {
	client *statsd.Client
}

// NewBackend dials the DogStatsD endpoint described by cfg.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: agent address is required")
	}

	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	client, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: dial %s: %w", cfg.Addr, err)
	}
	return &Backend{client: client}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	// DogStatsD counts are integral; the pipeline only emits whole deltas.
	b.client.Count(name, int64(delta), renderTags(labels), sampleAll)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.client.Histogram(name, value, renderTags(labels), sampleAll)
}

// Flush drains the client's buffer and releases the connection. The client
// buffers datagrams, so skipping this at shutdown loses the tail of the run.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	if err := b.client.Flush(); err != nil {
		b.client.Close()
		return fmt.Errorf("datadog: flush: %w", err)
	}
	return b.client.Close()
}

// renderTags converts labels into "key:value" tags sorted by key, so the
// same label set always produces the same tag list.
func renderTags(labels metrics.Labels) []string {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]string, len(keys))
	for i, k := range keys {
		tags[i] = k + ":" + labels[k]
	}
	return tags
}
