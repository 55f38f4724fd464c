package authcore

import (
	"sync/atomic"
)

type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricAccountLocked
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricRateLimitHit
	MetricSessionCreated
	MetricSessionTerminated
	MetricLogout
	MetricLogoutAll
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricEmailVerified
	MetricPasswordChanged
	MetricPasswordResetRequested
	MetricPasswordResetCompleted
	MetricPasswordResetReplayed
	MetricTokenVerified
	MetricTokenRejected
	metricIDCount
)

const cacheLineSize = 64

// Counters are padded to a cache line each so hot paths on different
// cores do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds in-process counters. The write path is lock-free and
// allocation-free; Snapshot copies current values into a map.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}
