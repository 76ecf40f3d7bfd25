package bscore

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering from 1us to 10s with logarithmic spacing.
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

// Metrics tracks per-Pool completion statistics: counts and latency by
// opcode, queue depth, and errors, the bookkeeping a production backing
// store wires into its Observer.
type Metrics struct {
	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64
	SyncOps  atomic.Uint64
	UnmapOps atomic.Uint64

	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64
	SyncErrors  atomic.Uint64
	UnmapErrors atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCompletion records one finished Command's outcome. success is
// cmd.Result == 0, following the source's zero-is-success SCSI
// convention.
func (m *Metrics) RecordCompletion(cmd *Command, latencyNs uint64) {
	success := cmd.Result == 0
	switch cmd.Op {
	case OpRead:
		m.ReadOps.Add(1)
		if success {
			m.ReadBytes.Add(uint64(cmd.Length))
		} else {
			m.ReadErrors.Add(1)
		}
	case OpWrite:
		m.WriteOps.Add(1)
		if success {
			m.WriteBytes.Add(uint64(cmd.Length))
		} else {
			m.WriteErrors.Add(1)
		}
	case OpSync:
		m.SyncOps.Add(1)
		if !success {
			m.SyncErrors.Add(1)
		}
	case OpUnmap:
		m.UnmapOps.Add(1)
		if !success {
			m.UnmapErrors.Add(1)
		}
	}
	m.recordLatency(latencyNs)
}

// RecordQueueDepth records current queue depth for statistics.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
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

// Stop marks the pool as stopped for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics with derived
// statistics computed.
type MetricsSnapshot struct {
	ReadOps  uint64
	WriteOps uint64
	SyncOps  uint64
	UnmapOps uint64

	ReadBytes  uint64
	WriteBytes uint64

	ReadErrors  uint64
	WriteErrors uint64
	SyncErrors  uint64
	UnmapErrors uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	ReadIOPS       float64
	WriteIOPS      float64
	ReadBandwidth  float64
	WriteBandwidth float64
	TotalOps       uint64
	TotalBytes     uint64
	ErrorRate      float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:       m.ReadOps.Load(),
		WriteOps:      m.WriteOps.Load(),
		SyncOps:       m.SyncOps.Load(),
		UnmapOps:      m.UnmapOps.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		WriteBytes:    m.WriteBytes.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		WriteErrors:   m.WriteErrors.Load(),
		SyncErrors:    m.SyncErrors.Load(),
		UnmapErrors:   m.UnmapErrors.Load(),
		MaxQueueDepth: m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.ReadOps + snap.WriteOps + snap.SyncOps + snap.UnmapOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

	if qc := m.QueueDepthCount.Load(); qc > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(qc)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	if stopTime := m.StopTime.Load(); stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadIOPS = float64(snap.ReadOps) / uptimeSeconds
		snap.WriteIOPS = float64(snap.WriteOps) / uptimeSeconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / uptimeSeconds
		snap.WriteBandwidth = float64(snap.WriteBytes) / uptimeSeconds
	}

	totalErrors := snap.ReadErrors + snap.WriteErrors + snap.SyncErrors + snap.UnmapErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
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

// String renders a human-readable one-line summary, used by cmd/bscoredemo
// to print a final report.
func (s MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"ops=%d bytes=%s iops(r/w)=%.0f/%.0f bw(r/w)=%s/s/%s/s p50=%s p99=%s errs=%.2f%%",
		s.TotalOps,
		humanize.Bytes(s.TotalBytes),
		s.ReadIOPS, s.WriteIOPS,
		humanize.Bytes(uint64(s.ReadBandwidth)),
		humanize.Bytes(uint64(s.WriteBandwidth)),
		time.Duration(s.LatencyP50Ns),
		time.Duration(s.LatencyP99Ns),
		s.ErrorRate,
	)
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
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

// Reset resets all metrics counters. Useful for testing.
func (m *Metrics) Reset() {
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.SyncOps.Store(0)
	m.UnmapOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.SyncErrors.Store(0)
	m.UnmapErrors.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer is a pluggable recorder of completion and queue-depth events.
// MetricsObserver additionally satisfies bscore.Notifier, so a Pool can be
// configured with a MetricsObserver directly as its Sink.
type Observer interface {
	ObserveCompletion(cmd *Command, latencyNs uint64)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(*Command, uint64) {}
func (NoOpObserver) ObserveQueueDepth(uint32)           {}

// MetricsObserver implements Observer using the built-in Metrics type and
// Notifier so it can be chained in front of (or instead of) a real
// completion Sink.
type MetricsObserver struct {
	metrics *Metrics
	next    Notifier
}

// NewMetricsObserver creates an observer that records to m and, if next is
// non-nil, forwards every completion received through Notify to it after
// recording. ObserveCompletion records only and does not forward.
func NewMetricsObserver(m *Metrics, next Notifier) *MetricsObserver {
	return &MetricsObserver{metrics: m, next: next}
}

// ObserveCompletion implements Observer.
func (o *MetricsObserver) ObserveCompletion(cmd *Command, latencyNs uint64) {
	o.metrics.RecordCompletion(cmd, latencyNs)
}

// ObserveQueueDepth implements Observer.
func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

// Notify implements Notifier by recording zero latency (callers that want
// accurate per-command latency should track submission time themselves
// and call ObserveCompletion directly) and forwarding to next.
func (o *MetricsObserver) Notify(cmd *Command) {
	o.metrics.RecordCompletion(cmd, 0)
	if o.next != nil {
		o.next.Notify(cmd)
	}
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
	_ Notifier = (*MetricsObserver)(nil)
)
