package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter slot.
type MetricID uint16

const (
	MetricRequestSuccess MetricID = iota
	MetricRequestFailure
	MetricRateLimited
	MetricQueueRejected
	MetricUnauthorizedRetry
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshShared
	MetricLoginSuccess
	MetricLoginFailure
	MetricLogout
	MetricSessionExpired
	MetricOfflineQueued
	MetricOfflineReplayed
	MetricOfflineDropped
	MetricRequestLatency
	MetricIDCount
)

// latencyBounds are the inclusive upper bounds of the finite histogram buckets. A final
// overflow bucket takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// slot keeps each counter on its own cache line.
type slot struct {
	atomic.Uint64
	_ [56]byte
}

type histogram struct {
	buckets [histBucketCount]atomic.Uint64
	sum     atomic.Int64
}

func (h *histogram) observe(d time.Duration) {
	i := 0
	for i < len(latencyBounds) && d > latencyBounds[i] {
		i++
	}
	h.buckets[i].Add(1)
	h.sum.Add(int64(d))
}

func (h *histogram) copyBuckets() []uint64 {
	out := make([]uint64, histBucketCount)
	for i := range h.buckets {
		out[i] = h.buckets[i].Load()
	}
	return out
}

// Config toggles collection.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds the counters. A nil or disabled Metrics ignores writes.
type Metrics struct {
	counting bool
	timing   bool
	slots    [MetricIDCount]slot
	latency  histogram
}

// Snapshot is a point-in-time copy. Histograms hold per-bucket (not cumulative)
// counts; Sums holds each histogram's total observed time.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]time.Duration
}

// New creates Metrics. Latency is only timed when counting is enabled too.
func New(cfg Config) *Metrics {
	return &Metrics{counting: cfg.Enabled, timing: cfg.Enabled && cfg.EnableLatency}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.counting }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.timing }

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m.Enabled() && id < MetricRequestLatency {
		m.slots[id].Add(1)
	}
}

// Observe records d in the latency histogram; negative durations count as zero. Any id
// other than MetricRequestLatency is ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricRequestLatency {
		return
	}
	m.latency.observe(max(d, 0))
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricRequestLatency {
		return 0
	}
	return m.slots[id].Load()
}

// Snapshot copies every counter and, when timing, the histogram. The maps are always
// non-nil.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
		Sums:       map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range MetricRequestLatency {
		s.Counters[id] = m.slots[id].Load()
	}
	if m.timing {
		s.Histograms[MetricRequestLatency] = m.latency.copyBuckets()
		s.Sums[MetricRequestLatency] = time.Duration(m.latency.sum.Load())
	}
	return s
}
