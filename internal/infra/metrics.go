package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	tradesExecuted atomic.Uint64
	tradesRejected atomic.Uint64
	ticksRun       atomic.Uint64
	saveFailures   atomic.Uint64
	notifications  atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTrade records one trade attempt; executed is true on success.
func (m *Metrics) RecordTrade(executed bool) {
	if executed {
		m.tradesExecuted.Add(1)
	} else {
		m.tradesRejected.Add(1)
	}
}

// RecordTick records one completed simulation tick.
func (m *Metrics) RecordTick() {
	m.ticksRun.Add(1)
}

// RecordSaveFailure records one failed document write.
func (m *Metrics) RecordSaveFailure() {
	m.saveFailures.Add(1)
}

// RecordNotification records one change-notification fan-out.
func (m *Metrics) RecordNotification() {
	m.notifications.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TradesExecuted uint64
	TradesRejected uint64
	TicksRun       uint64
	SaveFailures   uint64
	Notifications  uint64
	Timestamp      time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TradesExecuted: m.tradesExecuted.Load(),
		TradesRejected: m.tradesRejected.Load(),
		TicksRun:       m.ticksRun.Load(),
		SaveFailures:   m.saveFailures.Load(),
		Notifications:  m.notifications.Load(),
		Timestamp:      time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.tradesExecuted.Store(0)
	m.tradesRejected.Store(0)
	m.ticksRun.Store(0)
	m.saveFailures.Store(0)
	m.notifications.Store(0)
}
