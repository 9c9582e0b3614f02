// Package metrics tracks per-thread session and relay statistics. It lives
// under internal/ so the ring driver can record against it without the
// root package importing the driver (the root package assembles a Server
// from internal/driver, internal/pool, and this package, and re-exports the
// Metrics/Observer surface under socks5uring for callers of cmd/socks5uringd).
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/socks5uring/socks5uring/internal/errs"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for one ring driver
// thread's worth of sessions.
type Metrics struct {
	// Session lifecycle counters
	SessionsAccepted atomic.Uint64 // Accepts handed off to a session
	SessionsRejected atomic.Uint64 // Accepts closed due to buffer-pool exhaustion
	SessionsClosed   atomic.Uint64 // Sessions dropped (success or failure)
	SessionsFailed   atomic.Uint64 // Sessions dropped due to a protocol, resolution, connect or completion error

	// Byte counters
	BytesClientToDestination atomic.Uint64
	BytesDestinationToClient atomic.Uint64

	// Error counters, broken out by taxonomy kind relevant to the hot path
	ProtocolViolations atomic.Uint64
	ResolutionFailures atomic.Uint64
	ConnectFailures    atomic.Uint64
	CompletionErrors   atomic.Uint64

	// Performance tracking: destination-connect latency, recorded through
	// RecordConnectLatency (the only latency this type records)
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts). bucket[i] holds the
	// count of observations with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // start of the observation window (UnixNano), set by NewMetrics and Reset
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAccept records a successfully dispatched accept.
func (m *Metrics) RecordAccept() { m.SessionsAccepted.Add(1) }

// RecordReject records an accept closed due to buffer-pool exhaustion.
func (m *Metrics) RecordReject() { m.SessionsRejected.Add(1) }

// RecordBytes records bytes relayed in one direction.
func (m *Metrics) RecordBytes(clientToDestination bool, n uint64) {
	if clientToDestination {
		m.BytesClientToDestination.Add(n)
	} else {
		m.BytesDestinationToClient.Add(n)
	}
}

// RecordConnectLatency records the time from submit_destination_connect to
// its completion and updates the latency histogram.
func (m *Metrics) RecordConnectLatency(latencyNs uint64) {
	m.recordLatency(latencyNs)
}

// RecordSessionClosed records a session leaving the driver's slab, tagging
// whether it closed due to a taxonomy failure.
func (m *Metrics) RecordSessionClosed(kind errs.ErrorKind) {
	m.SessionsClosed.Add(1)
	switch kind {
	case errs.ErrKindProtocolViolation:
		m.ProtocolViolations.Add(1)
		m.SessionsFailed.Add(1)
	case errs.ErrKindResolutionFailure:
		m.ResolutionFailures.Add(1)
		m.SessionsFailed.Add(1)
	case errs.ErrKindDestinationConnectFailed:
		m.ConnectFailures.Add(1)
		m.SessionsFailed.Add(1)
	case errs.ErrKindCompletionError:
		m.CompletionErrors.Add(1)
		m.SessionsFailed.Add(1)
	case errs.ErrKindPeerDisconnect:
		// Ordinary end of relay, not counted as a failure.
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the observation window as closed.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time snapshot of Metrics.
type Snapshot struct {
	SessionsAccepted uint64
	SessionsRejected uint64
	SessionsClosed   uint64
	SessionsFailed   uint64

	BytesClientToDestination uint64
	BytesDestinationToClient uint64

	ProtocolViolations uint64
	ResolutionFailures uint64
	ConnectFailures    uint64
	CompletionErrors   uint64

	AvgConnectLatencyNs uint64
	UptimeNs            uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		SessionsAccepted:         m.SessionsAccepted.Load(),
		SessionsRejected:         m.SessionsRejected.Load(),
		SessionsClosed:           m.SessionsClosed.Load(),
		SessionsFailed:           m.SessionsFailed.Load(),
		BytesClientToDestination: m.BytesClientToDestination.Load(),
		BytesDestinationToClient: m.BytesDestinationToClient.Load(),
		ProtocolViolations:       m.ProtocolViolations.Load(),
		ResolutionFailures:       m.ResolutionFailures.Load(),
		ConnectFailures:          m.ConnectFailures.Load(),
		CompletionErrors:         m.CompletionErrors.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgConnectLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.SessionsAccepted.Store(0)
	m.SessionsRejected.Store(0)
	m.SessionsClosed.Store(0)
	m.SessionsFailed.Store(0)
	m.BytesClientToDestination.Store(0)
	m.BytesDestinationToClient.Store(0)
	m.ProtocolViolations.Store(0)
	m.ResolutionFailures.Store(0)
	m.ConnectFailures.Store(0)
	m.CompletionErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection from the ring driver's hot
// path without locking.
type Observer interface {
	ObserveAccept()
	ObserveReject()
	ObserveBytes(clientToDestination bool, n uint64)
	ObserveConnectLatency(latencyNs uint64)
	ObserveSessionClosed(kind errs.ErrorKind)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAccept()                         {}
func (NoOpObserver) ObserveReject()                          {}
func (NoOpObserver) ObserveBytes(bool, uint64)               {}
func (NoOpObserver) ObserveConnectLatency(uint64)            {}
func (NoOpObserver) ObserveSessionClosed(errs.ErrorKind)      {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAccept() { o.metrics.RecordAccept() }
func (o *MetricsObserver) ObserveReject() { o.metrics.RecordReject() }

func (o *MetricsObserver) ObserveBytes(clientToDestination bool, n uint64) {
	o.metrics.RecordBytes(clientToDestination, n)
}

func (o *MetricsObserver) ObserveConnectLatency(latencyNs uint64) {
	o.metrics.RecordConnectLatency(latencyNs)
}

func (o *MetricsObserver) ObserveSessionClosed(kind errs.ErrorKind) {
	o.metrics.RecordSessionClosed(kind)
}

// Compile-time interface checks.
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
