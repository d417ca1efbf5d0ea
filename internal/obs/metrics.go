package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters and latency stats for the
// conflation pipeline.
type Metrics struct {
	ticks            uint64
	queueDrops       uint64
	queueClosed      uint64
	batches          uint64
	batchEntries     uint64
	subscriberFaults uint64

	tickLatency      LatencyStats
	broadcastLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Ticks            uint64
	QueueDrops       uint64
	QueueClosed      uint64
	Batches          uint64
	BatchEntries     uint64
	SubscriberFaults uint64
	TickLatency      LatencySnapshot
	BroadcastLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveTick counts a received tick and tracks feed-to-receive latency when
// both timestamps are present.
func (m *Metrics) ObserveTick(tsEvent, tsRecv int64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticks, 1)
	if tsEvent > 0 && tsRecv > 0 {
		delta := tsRecv - tsEvent
		if delta >= 0 {
			m.tickLatency.Observe(time.Duration(delta))
		}
	}
}

// ObserveBatch counts one delivered batch and its entries, plus the time
// spent broadcasting it to consumers.
func (m *Metrics) ObserveBatch(entries int, took time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.batches, 1)
	atomic.AddUint64(&m.batchEntries, uint64(entries))
	m.broadcastLatency.Observe(took)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// IncSubscriberFault records a recovered subscriber failure.
func (m *Metrics) IncSubscriberFault() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.subscriberFaults, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Ticks:            atomic.LoadUint64(&m.ticks),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		QueueClosed:      atomic.LoadUint64(&m.queueClosed),
		Batches:          atomic.LoadUint64(&m.batches),
		BatchEntries:     atomic.LoadUint64(&m.batchEntries),
		SubscriberFaults: atomic.LoadUint64(&m.subscriberFaults),
		TickLatency:      m.tickLatency.Snapshot(),
		BroadcastLatency: m.broadcastLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
