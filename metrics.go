package socks5uring

import (
	"github.com/socks5uring/socks5uring/internal/metrics"
)

// Metrics, MetricsSnapshot, and Observer live in internal/metrics so the
// ring driver can record against them without this package importing the
// driver. See errors.go for the same reasoning applied to the error
// taxonomy.
type Metrics = metrics.Metrics
type MetricsSnapshot = metrics.Snapshot
type Observer = metrics.Observer
type NoOpObserver = metrics.NoOpObserver
type MetricsObserver = metrics.MetricsObserver

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
var LatencyBuckets = metrics.LatencyBuckets

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics { return metrics.NewMetrics() }

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return metrics.NewMetricsObserver(m) }
