package fabricmanager

import (
	"encoding/binary"

	"github.com/cxlfabric/fabricmanager/internal/channeltable"
	"github.com/cxlfabric/fabricmanager/internal/wire"
)

// Every handler in this file is called exclusively from the core-state
// goroutine (see Manager.call and runCore in manager.go); none of them take locks of their
// own, matching the single-writer model in SPEC_FULL.md section 5.

func valueToBytes(value uint64, size uint8) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf[:size]
}

func bytesToValue(buf []byte) uint64 {
	var full [8]byte
	copy(full[:], buf)
	return binary.LittleEndian.Uint64(full[:])
}

func validSize(size uint8) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

// handleGetMemSize reports the fabric-configured per-region replica size:
// the one quantity well-defined before any channel exists.
func (m *Manager) handleGetMemSize() *wire.GetMemSizeResp {
	return &wire.GetMemSizeResp{Status: wire.StatusOK, TotalSize: m.cfg.ReplicaSize}
}

func (m *Manager) handleWrite(req *wire.WriteReq) *wire.WriteResp {
	if !validSize(req.Size) {
		return &wire.WriteResp{Status: wire.StatusInvalidReq}
	}
	if req.Addr+uint64(req.Size) > m.cfg.ReplicaSize {
		return &wire.WriteResp{Status: wire.StatusOutOfBounds}
	}
	ch, ok := m.channels.Lookup(req.ChannelID)
	if !ok {
		return &wire.WriteResp{Status: wire.StatusInvalidReq}
	}
	if len(ch.Regions) == 0 {
		m.observer.ObserveWrite(0, 0, 0)
		return &wire.WriteResp{Status: wire.StatusNoHealthyBackend}
	}

	value := valueToBytes(req.Value, req.Size)
	attempted, succeeded := 0, 0
	for _, region := range ch.Regions {
		dev := m.devices[region.DeviceIndex]
		if dev.Status() != deviceHealthy {
			continue
		}
		attempted++
		if err := dev.Write(region.Offset+req.Addr, value); err == nil {
			succeeded++
		}
	}
	m.observer.ObserveWrite(attempted, succeeded, 0)

	status := wire.StatusIO
	switch {
	case attempted == 0:
		status = wire.StatusNoHealthyBackend
	case succeeded == attempted:
		status = wire.StatusOK
	}
	return &wire.WriteResp{Status: status}
}

func (m *Manager) handleRead(req *wire.ReadReq) *wire.ReadResp {
	if !validSize(req.Size) {
		return &wire.ReadResp{Status: wire.StatusInvalidReq}
	}
	if req.Addr+uint64(req.Size) > m.cfg.ReplicaSize {
		return &wire.ReadResp{Status: wire.StatusOutOfBounds}
	}
	ch, ok := m.channels.Lookup(req.ChannelID)
	if !ok {
		return &wire.ReadResp{Status: wire.StatusInvalidReq}
	}

	buf := make([]byte, req.Size)
	for _, region := range ch.Regions {
		dev := m.devices[region.DeviceIndex]
		if dev.Status() != deviceHealthy {
			continue
		}
		if err := dev.Read(region.Offset+req.Addr, buf); err == nil {
			m.observer.ObserveRead(true, 0)
			return &wire.ReadResp{Status: wire.StatusOK, Value: bytesToValue(buf)}
		}
	}
	m.observer.ObserveRead(false, 0)
	return &wire.ReadResp{Status: wire.StatusNoHealthyBackend}
}

func (m *Manager) handleRegisterService(req *wire.RegisterServiceReq, serverFD int) *wire.RegisterServiceResp {
	name := wire.StringField(req.ServiceName[:])
	instance := wire.StringField(req.InstanceID[:])
	if err := m.registry.Register(name, instance, serverFD); err != nil {
		return &wire.RegisterServiceResp{Status: wire.StatusRegistrationFailed}
	}
	return &wire.RegisterServiceResp{Status: wire.StatusOK}
}

func (m *Manager) handleDeregisterService(req *wire.DeregisterServiceReq, serverFD int) *wire.DeregisterServiceResp {
	name := wire.StringField(req.ServiceName[:])
	instance := wire.StringField(req.InstanceID[:])
	if !m.registry.Deregister(name, instance, serverFD) {
		return &wire.DeregisterServiceResp{Status: wire.StatusInvalidReq}
	}
	return &wire.DeregisterServiceResp{Status: wire.StatusOK}
}

// requestChannelOutcome bundles the response to the client with the notify
// the caller must push to the chosen server, if any.
type requestChannelOutcome struct {
	resp        *wire.RequestChannelResp
	notifyFD    int
	notify      *wire.NewClientNotify
	channelID   uint64
	allocatedOK bool
}

// handleRequestChannel implements the six-step hard path described in
// SPEC_FULL.md section 4.4.3. It never leaves partial state: every
// allocation is rolled back before any failing status is returned.
func (m *Manager) handleRequestChannel(req *wire.RequestChannelReq, clientFD int) requestChannelOutcome {
	serviceName := wire.StringField(req.ServiceName[:])
	clientInstanceID := wire.StringField(req.InstanceID[:])

	// Step 1 & 2: resolve service, pick a server.
	server, ok := m.registry.Pick(serviceName)
	if !ok {
		return requestChannelOutcome{resp: &wire.RequestChannelResp{Status: wire.StatusServiceNotFound}}
	}

	// Step 3: allocate NUM_REPLICAS regions, one per distinct healthy device.
	regions := make([]channeltable.Region, 0, len(m.devices))
	for devIdx, dev := range m.devices {
		if len(regions) >= m.numReplicas {
			break
		}
		if dev.Status() != deviceHealthy {
			continue
		}
		offset, ok := dev.Allocate(m.cfg.ReplicaSize)
		if !ok {
			continue
		}
		regions = append(regions, channeltable.Region{DeviceIndex: devIdx, Offset: offset, Size: m.cfg.ReplicaSize})
	}
	if len(regions) < m.numReplicas {
		for _, r := range regions {
			m.devices[r.DeviceIndex].Free(r.Offset, r.Size)
		}
		return requestChannelOutcome{resp: &wire.RequestChannelResp{Status: wire.StatusChannelAllocFailed}}
	}

	// Step 4 & 5: assign channel_id, record in the table.
	ch := channeltable.Channel{
		ClientInstanceID: clientInstanceID,
		ClientFD:         clientFD,
		ServerInstanceID: server.InstanceID,
		ServerFD:         server.ServerFD,
		ServiceName:      serviceName,
		Regions:          regions,
	}
	ch = m.channels.Insert(ch)

	// Before step 6, verify the chosen server connection is still live.
	if _, stillConnected := m.conns[server.ServerFD]; !stillConnected {
		m.rollbackChannel(ch)
		return requestChannelOutcome{resp: &wire.RequestChannelResp{Status: wire.StatusChannelAllocFailed}}
	}

	notify := &wire.NewClientNotify{
		ChannelID:        ch.ChannelID,
		Offset:           0,
		Size:             m.cfg.ReplicaSize,
		ServiceName:      req.ServiceName,
		ClientInstanceID: req.InstanceID,
	}

	return requestChannelOutcome{
		resp: &wire.RequestChannelResp{
			Status:    wire.StatusOK,
			ChannelID: ch.ChannelID,
			Offset:    0,
			Size:      m.cfg.ReplicaSize,
		},
		notifyFD:    server.ServerFD,
		notify:      notify,
		channelID:   ch.ChannelID,
		allocatedOK: true,
	}
}

// rollbackChannel frees every region of ch and removes it from the table.
// Used when a failure is discovered after the channel was already recorded.
func (m *Manager) rollbackChannel(ch channeltable.Channel) {
	for _, r := range ch.Regions {
		m.devices[r.DeviceIndex].Free(r.Offset, r.Size)
	}
	m.channels.Remove(ch.ChannelID)
}

// rollbackChannelByID looks channelID back up and rolls it back. Used by
// the event loop when the step-6 notify itself fails to write (the server's
// connection was still registered at the liveness check but the write
// failed immediately after), per SPEC_FULL.md section 4.4.3.
func (m *Manager) rollbackChannelByID(channelID uint64) {
	if ch, ok := m.channels.Lookup(channelID); ok {
		m.rollbackChannel(ch)
	}
}

// releaseChannelOutcome bundles the response to the requester with the
// close notify the caller must push to the other peer, if any.
type releaseChannelOutcome struct {
	resp       *wire.ReleaseChannelResp
	notifyFD   int
	notify     *wire.CloseChannelNotify
	shouldSend bool
}

// handleReleaseChannel implements SPEC_FULL.md section 4.4.3a. Releasing an
// absent or already-released channel is idempotent and returns INVALID_REQ.
func (m *Manager) handleReleaseChannel(req *wire.ReleaseChannelReq, requesterFD int) releaseChannelOutcome {
	ch, ok := m.channels.Remove(req.ChannelID)
	if !ok {
		return releaseChannelOutcome{resp: &wire.ReleaseChannelResp{Status: wire.StatusInvalidReq}}
	}
	for _, r := range ch.Regions {
		m.devices[r.DeviceIndex].Free(r.Offset, r.Size)
	}
	m.observer.ObserveChannelRelease()

	peerFD := ch.ServerFD
	if requesterFD == ch.ServerFD {
		peerFD = ch.ClientFD
	}
	return releaseChannelOutcome{
		resp:       &wire.ReleaseChannelResp{Status: wire.StatusOK},
		notifyFD:   peerFD,
		notify:     &wire.CloseChannelNotify{ChannelID: req.ChannelID},
		shouldSend: peerFD != requesterFD,
	}
}

func (m *Manager) handleAdminFailReplica(req *wire.AdminFailReplicaReq) *wire.AdminFailReplicaResp {
	idx := int(req.DeviceIndex)
	if idx >= len(m.devices) {
		return &wire.AdminFailReplicaResp{Status: wire.StatusInvalidReq}
	}
	m.devices[idx].MarkUnhealthy()
	m.observer.ObserveDeviceMarkedUnhealthy(idx)
	return &wire.AdminFailReplicaResp{Status: wire.StatusOK}
}

// disconnectOutcome lists the close notifies owed to surviving peers, for
// the caller (eventloop.go) to push after the core-state goroutine has
// applied every mutation.
type disconnectOutcome struct {
	notifies []pendingNotify
}

type pendingNotify struct {
	fd     int
	tag    wire.Tag
	notify interface{}
}

// handleDisconnect implements SPEC_FULL.md section 4.4.7: tear down every
// channel naming fd, deregister every service entry on fd, and report the
// close notifies owed to surviving peers.
func (m *Manager) handleDisconnect(fd int) disconnectOutcome {
	var out disconnectOutcome
	for _, id := range m.channels.ChannelIDsForFD(fd) {
		ch, ok := m.channels.Remove(id)
		if !ok {
			continue
		}
		for _, r := range ch.Regions {
			m.devices[r.DeviceIndex].Free(r.Offset, r.Size)
		}
		m.observer.ObserveChannelRelease()

		peerFD := ch.ServerFD
		if fd == ch.ServerFD {
			peerFD = ch.ClientFD
		}
		if peerFD != fd {
			out.notifies = append(out.notifies, pendingNotify{
				fd:     peerFD,
				tag:    wire.TagCloseChannelNotify,
				notify: &wire.CloseChannelNotify{ChannelID: id},
			})
		}
	}
	m.registry.DropByFD(fd)
	m.observer.ObserveDisconnect()
	return out
}
