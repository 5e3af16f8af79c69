package lmsauth

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginNotActive
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricRegisterFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts presentations of an already revoked
	// refresh token, including the loser of a concurrent exchange.
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricLogout
	MetricLogoutAll
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricSocialLoginSuccess
	MetricSocialLoginFailure
	MetricSocialAccountCreated
	MetricSocialAccountLinked
	MetricNotifyFailure
	MetricExpiredTokensCleaned
	MetricLoginLatency
	MetricRefreshLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the latency buckets; one
// extra bucket catches everything slower.
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

// latencySlots maps each latency metric to its histogram slot.
var latencySlots = map[MetricID]int{
	MetricLoginLatency:   0,
	MetricRefreshLatency: 1,
}

// counter sits alone on its cache line so hot counters do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

type histogram [histBucketCount]atomic.Uint64

// Metrics is a fixed set of lock-free counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counter
	latency       [2]histogram
}

// MetricsSnapshot is a point-in-time copy of every counter and, when latency
// histograms are enabled, the per-bucket (non-cumulative) counts of each
// latency metric.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.enabled }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.enableLatency }

func (m *Metrics) Inc(id MetricID) { m.Add(id, 1) }

func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= metricIDCount || n == 0 {
		return
	}
	if _, ok := latencySlots[id]; ok {
		return
	}
	m.counters[id].Add(n)
}

// Observe records d when id is a latency metric and histograms are enabled.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	slot, ok := latencySlots[id]
	if !ok {
		return
	}
	m.latency[slot][bucketIndex(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if _, ok := latencySlots[id]; !ok {
			s.Counters[id] = m.counters[id].Load()
		}
	}
	if m.enableLatency {
		for id, slot := range latencySlots {
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = m.latency[slot][i].Load()
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

// HistogramBounds returns a copy of the latency bucket upper bounds.
func HistogramBounds() []time.Duration {
	return append([]time.Duration(nil), latencyBounds[:]...)
}

func bucketIndex(d time.Duration) int {
	return sort.Search(len(latencyBounds), func(i int) bool { return d <= latencyBounds[i] })
}
