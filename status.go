package fabricmanager

import "github.com/cxlfabric/fabricmanager/internal/memdevice"

// ReplicaStatus reports one backing device's health and occupancy, the
// fabric-wide analogue of a single block device's state.
type ReplicaStatus struct {
	Index    int    `json:"index"`
	Path     string `json:"path"`
	Healthy  bool   `json:"healthy"`
	Size     uint64 `json:"size"`
	FreeSize uint64 `json:"free_size"`
}

// FabricStatus is a snapshot of every replica's health plus the number of
// channels currently live, used by admin tooling and diagnostics.
type FabricStatus struct {
	Replicas     []ReplicaStatus `json:"replicas"`
	LiveChannels int             `json:"live_channels"`
}

// Status reports the current health of every backing device and the number
// of live channels. Safe to call concurrently with normal operation; it
// does not go through the core-state goroutine since every field it reads
// already has its own synchronization (memdevice.Device, channeltable.Table).
func (m *Manager) Status() FabricStatus {
	replicas := make([]ReplicaStatus, len(m.devices))
	for i, dev := range m.devices {
		replicas[i] = ReplicaStatus{
			Index:    i,
			Path:     dev.Path(),
			Healthy:  dev.Status() == memdevice.StatusHealthy,
			Size:     dev.Size(),
			FreeSize: dev.FreeSize(),
		}
	}
	return FabricStatus{
		Replicas:     replicas,
		LiveChannels: m.channels.Len(),
	}
}
