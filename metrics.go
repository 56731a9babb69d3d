package fabricmanager

import (
	"sync/atomic"
	"time"

	"github.com/cxlfabric/fabricmanager/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks the operational counters this fabric manager cares about:
// channel lifecycle, replicated I/O outcomes, and connection churn.
type Metrics struct {
	ChannelRequests        atomic.Uint64
	ChannelRequestFailures atomic.Uint64
	ChannelReleases        atomic.Uint64

	WriteOps          atomic.Uint64
	WriteFullSuccess  atomic.Uint64
	WritePartial      atomic.Uint64
	WriteNoHealthy    atomic.Uint64

	ReadOps       atomic.Uint64
	ReadSuccesses atomic.Uint64
	ReadNoHealthy atomic.Uint64

	Disconnects            atomic.Uint64
	DevicesMarkedUnhealthy atomic.Uint64

	channelLatencyNs      atomic.Uint64
	channelLatencyOps     atomic.Uint64
	channelLatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordChannelLatency(latencyNs uint64) {
	m.channelLatencyNs.Add(latencyNs)
	m.channelLatencyOps.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.channelLatencyBuckets[i].Add(1)
		}
	}
}

// ObserveChannelRequest records the outcome of one RPC_REQUEST_CHANNEL_REQ.
func (m *Metrics) ObserveChannelRequest(success bool, latencyNs uint64) {
	m.ChannelRequests.Add(1)
	if !success {
		m.ChannelRequestFailures.Add(1)
	}
	m.recordChannelLatency(latencyNs)
}

// ObserveChannelRelease records one completed release or disconnect
// teardown.
func (m *Metrics) ObserveChannelRelease() {
	m.ChannelReleases.Add(1)
}

// ObserveWrite records a replicated write's fan-out outcome.
func (m *Metrics) ObserveWrite(regionsAttempted, regionsSucceeded int, latencyNs uint64) {
	m.WriteOps.Add(1)
	switch {
	case regionsAttempted == 0:
		m.WriteNoHealthy.Add(1)
	case regionsSucceeded == regionsAttempted:
		m.WriteFullSuccess.Add(1)
	default:
		m.WritePartial.Add(1)
	}
}

// ObserveRead records a replicated read's outcome.
func (m *Metrics) ObserveRead(success bool, latencyNs uint64) {
	m.ReadOps.Add(1)
	if success {
		m.ReadSuccesses.Add(1)
	} else {
		m.ReadNoHealthy.Add(1)
	}
}

// ObserveDisconnect records one connection teardown.
func (m *Metrics) ObserveDisconnect() {
	m.Disconnects.Add(1)
}

// ObserveDeviceMarkedUnhealthy records one admin FAIL_REPLICA outcome.
func (m *Metrics) ObserveDeviceMarkedUnhealthy(deviceIndex int) {
	m.DevicesMarkedUnhealthy.Add(1)
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to log or
// serve from an admin status endpoint.
type MetricsSnapshot struct {
	ChannelRequests        uint64
	ChannelRequestFailures uint64
	ChannelReleases        uint64
	WriteOps               uint64
	WriteFullSuccess       uint64
	WritePartial           uint64
	WriteNoHealthy         uint64
	ReadOps                uint64
	ReadSuccesses          uint64
	ReadNoHealthy          uint64
	Disconnects            uint64
	DevicesMarkedUnhealthy uint64
	AvgChannelLatencyNs    uint64
	UptimeNs               uint64
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ChannelRequests:        m.ChannelRequests.Load(),
		ChannelRequestFailures: m.ChannelRequestFailures.Load(),
		ChannelReleases:        m.ChannelReleases.Load(),
		WriteOps:               m.WriteOps.Load(),
		WriteFullSuccess:       m.WriteFullSuccess.Load(),
		WritePartial:           m.WritePartial.Load(),
		WriteNoHealthy:         m.WriteNoHealthy.Load(),
		ReadOps:                m.ReadOps.Load(),
		ReadSuccesses:          m.ReadSuccesses.Load(),
		ReadNoHealthy:          m.ReadNoHealthy.Load(),
		Disconnects:            m.Disconnects.Load(),
		DevicesMarkedUnhealthy: m.DevicesMarkedUnhealthy.Load(),
		UptimeNs:               uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
	if ops := m.channelLatencyOps.Load(); ops > 0 {
		snap.AvgChannelLatencyNs = m.channelLatencyNs.Load() / ops
	}
	return snap
}

// Reset zeroes all counters. Useful between test scenarios.
func (m *Metrics) Reset() {
	*m = Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveChannelRequest(bool, uint64) {}
func (NoOpObserver) ObserveChannelRelease()             {}
func (NoOpObserver) ObserveWrite(int, int, uint64)      {}
func (NoOpObserver) ObserveRead(bool, uint64)            {}
func (NoOpObserver) ObserveDisconnect()                 {}
func (NoOpObserver) ObserveDeviceMarkedUnhealthy(int)   {}

// MultiObserver fans a single observation out to every wrapped Observer,
// so the in-process Metrics snapshot and the Prometheus exporter can both
// watch the same event stream.
type MultiObserver struct {
	Observers []interfaces.Observer
}

func (o MultiObserver) ObserveChannelRequest(success bool, latencyNs uint64) {
	for _, obs := range o.Observers {
		obs.ObserveChannelRequest(success, latencyNs)
	}
}
func (o MultiObserver) ObserveChannelRelease() {
	for _, obs := range o.Observers {
		obs.ObserveChannelRelease()
	}
}
func (o MultiObserver) ObserveWrite(attempted, succeeded int, latencyNs uint64) {
	for _, obs := range o.Observers {
		obs.ObserveWrite(attempted, succeeded, latencyNs)
	}
}
func (o MultiObserver) ObserveRead(success bool, latencyNs uint64) {
	for _, obs := range o.Observers {
		obs.ObserveRead(success, latencyNs)
	}
}
func (o MultiObserver) ObserveDisconnect() {
	for _, obs := range o.Observers {
		obs.ObserveDisconnect()
	}
}
func (o MultiObserver) ObserveDeviceMarkedUnhealthy(deviceIndex int) {
	for _, obs := range o.Observers {
		obs.ObserveDeviceMarkedUnhealthy(deviceIndex)
	}
}

var _ interfaces.Observer = (*Metrics)(nil)
var _ interfaces.Observer = NoOpObserver{}
var _ interfaces.Observer = MultiObserver{}
