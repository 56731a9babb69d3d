package fabricmanager

import (
	"testing"

	"github.com/cxlfabric/fabricmanager/internal/interfaces"
)

func TestMetricsObserveChannelRequest(t *testing.T) {
	m := NewMetrics()
	m.ObserveChannelRequest(true, 5_000)
	m.ObserveChannelRequest(false, 50_000)

	snap := m.Snapshot()
	if snap.ChannelRequests != 2 {
		t.Errorf("ChannelRequests = %d, want 2", snap.ChannelRequests)
	}
	if snap.ChannelRequestFailures != 1 {
		t.Errorf("ChannelRequestFailures = %d, want 1", snap.ChannelRequestFailures)
	}
	if snap.AvgChannelLatencyNs != 27_500 {
		t.Errorf("AvgChannelLatencyNs = %d, want 27500", snap.AvgChannelLatencyNs)
	}
}

func TestMetricsObserveWriteOutcomes(t *testing.T) {
	m := NewMetrics()
	m.ObserveWrite(3, 3, 1_000)
	m.ObserveWrite(3, 1, 1_000)
	m.ObserveWrite(0, 0, 1_000)

	snap := m.Snapshot()
	if snap.WriteOps != 3 {
		t.Errorf("WriteOps = %d, want 3", snap.WriteOps)
	}
	if snap.WriteFullSuccess != 1 {
		t.Errorf("WriteFullSuccess = %d, want 1", snap.WriteFullSuccess)
	}
	if snap.WritePartial != 1 {
		t.Errorf("WritePartial = %d, want 1", snap.WritePartial)
	}
	if snap.WriteNoHealthy != 1 {
		t.Errorf("WriteNoHealthy = %d, want 1", snap.WriteNoHealthy)
	}
}

func TestMetricsObserveReadOutcomes(t *testing.T) {
	m := NewMetrics()
	m.ObserveRead(true, 500)
	m.ObserveRead(false, 500)

	snap := m.Snapshot()
	if snap.ReadOps != 2 {
		t.Errorf("ReadOps = %d, want 2", snap.ReadOps)
	}
	if snap.ReadSuccesses != 1 {
		t.Errorf("ReadSuccesses = %d, want 1", snap.ReadSuccesses)
	}
	if snap.ReadNoHealthy != 1 {
		t.Errorf("ReadNoHealthy = %d, want 1", snap.ReadNoHealthy)
	}
}

func TestMetricsDisconnectAndUnhealthy(t *testing.T) {
	m := NewMetrics()
	m.ObserveDisconnect()
	m.ObserveDisconnect()
	m.ObserveDeviceMarkedUnhealthy(1)

	snap := m.Snapshot()
	if snap.Disconnects != 2 {
		t.Errorf("Disconnects = %d, want 2", snap.Disconnects)
	}
	if snap.DevicesMarkedUnhealthy != 1 {
		t.Errorf("DevicesMarkedUnhealthy = %d, want 1", snap.DevicesMarkedUnhealthy)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.ObserveChannelRequest(true, 100)
	m.Reset()
	snap := m.Snapshot()
	if snap.ChannelRequests != 0 {
		t.Errorf("expected ChannelRequests = 0 after Reset, got %d", snap.ChannelRequests)
	}
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var o NoOpObserver
	o.ObserveChannelRequest(true, 1)
	o.ObserveChannelRelease()
	o.ObserveWrite(3, 3, 1)
	o.ObserveRead(true, 1)
	o.ObserveDisconnect()
	o.ObserveDeviceMarkedUnhealthy(0)
}

func TestMultiObserverFansOut(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	multi := MultiObserver{Observers: []interfaces.Observer{a, b}}
	multi.ObserveChannelRelease()

	if a.Snapshot().ChannelReleases != 1 {
		t.Errorf("expected a to observe release")
	}
	if b.Snapshot().ChannelReleases != 1 {
		t.Errorf("expected b to observe release")
	}
}
