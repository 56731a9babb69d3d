// Package channeltable implements the ChannelTable: the set of live
// channels plus the fd-indexed reverse lookups used to tear channels down
// on disconnect.
package channeltable

import "sync"

// Region is one physical slice backing part of a channel.
type Region struct {
	DeviceIndex int
	Offset      uint64
	Size        uint64
}

// Channel is one live logical shared-memory grant.
type Channel struct {
	ChannelID       uint64
	ClientInstanceID string
	ClientFD        int
	ServerInstanceID string
	ServerFD        int
	ServiceName     string
	Regions         []Region
}

// LogicalSize is the size presented to the client: the size of any one
// region (all regions of a channel share the same size by construction).
func (c Channel) LogicalSize() uint64 {
	if len(c.Regions) == 0 {
		return 0
	}
	return c.Regions[0].Size
}

// Table holds every live channel plus fd -> set(channel_id) indices for
// both roles a connection can play. Like registry.Registry, it is only
// ever driven from the single core-state goroutine in normal operation;
// the mutex exists for direct use from tests.
type Table struct {
	mu sync.Mutex

	channels map[uint64]Channel
	byFD     map[int]map[uint64]struct{}
	nextID   uint64
}

// New returns an empty ChannelTable.
func New() *Table {
	return &Table{
		channels: make(map[uint64]Channel),
		byFD:     make(map[int]map[uint64]struct{}),
	}
}

// Insert assigns a fresh, monotonically increasing channel_id to ch,
// records it, and indexes it under both its client and server fd. The
// counter wraps to zero at the 64-bit boundary with no collision check,
// matching the reference fabric (see SPEC_FULL.md section 9).
func (t *Table) Insert(ch Channel) Channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch.ChannelID = t.nextID
	t.nextID++ // wraps to 0 on overflow, by construction of uint64

	t.channels[ch.ChannelID] = ch
	t.indexFD(ch.ClientFD, ch.ChannelID)
	t.indexFD(ch.ServerFD, ch.ChannelID)
	return ch
}

func (t *Table) indexFD(fd int, channelID uint64) {
	set, ok := t.byFD[fd]
	if !ok {
		set = make(map[uint64]struct{})
		t.byFD[fd] = set
	}
	set[channelID] = struct{}{}
}

func (t *Table) deindexFD(fd int, channelID uint64) {
	set, ok := t.byFD[fd]
	if !ok {
		return
	}
	delete(set, channelID)
	if len(set) == 0 {
		delete(t.byFD, fd)
	}
}

// Lookup returns the current record for channelID, if it exists.
func (t *Table) Lookup(channelID uint64) (Channel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[channelID]
	return ch, ok
}

// Remove drops channelID from the table and both fd indices. The caller is
// responsible for freeing the channel's regions on their backing devices
// first; Remove does not touch device state.
func (t *Table) Remove(channelID uint64) (Channel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.channels[channelID]
	if !ok {
		return Channel{}, false
	}
	delete(t.channels, channelID)
	t.deindexFD(ch.ClientFD, channelID)
	t.deindexFD(ch.ServerFD, channelID)
	return ch, true
}

// ChannelIDsForFD returns every channel_id whose client or server fd
// equals fd, for disconnect cleanup.
func (t *Table) ChannelIDsForFD(fd int) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.byFD[fd]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of live channels, used by tests asserting the
// table is unchanged after a failed request.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}
