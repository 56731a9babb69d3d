package memdevice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T, size uint64) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replica")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(size)))
	require.NoError(t, f.Close())

	dev, err := Open(path, size)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestOpenSeedsOneFreeBlock(t *testing.T) {
	dev := newTestDevice(t, 4096)
	if dev.FreeSize() != 4096 {
		t.Fatalf("FreeSize() = %d, want 4096", dev.FreeSize())
	}
}

func TestAllocateReducesFreeSizeAndSplits(t *testing.T) {
	dev := newTestDevice(t, 4096)

	off, ok := dev.Allocate(1024)
	if !ok {
		t.Fatal("Allocate failed")
	}
	if off != 0 {
		t.Fatalf("offset = %d, want 0", off)
	}
	if dev.FreeSize() != 3072 {
		t.Fatalf("FreeSize() = %d, want 3072", dev.FreeSize())
	}

	off2, ok := dev.Allocate(1024)
	if !ok {
		t.Fatal("second Allocate failed")
	}
	if off2 != 1024 {
		t.Fatalf("offset2 = %d, want 1024", off2)
	}
}

func TestAllocateFailsWhenNoBlockFits(t *testing.T) {
	dev := newTestDevice(t, 1024)
	_, ok := dev.Allocate(2048)
	if ok {
		t.Fatal("expected allocation to fail")
	}
	if dev.FreeSize() != 1024 {
		t.Fatalf("FreeSize() = %d, want unchanged 1024", dev.FreeSize())
	}
}

func TestFreeCoalescesWithBothNeighbors(t *testing.T) {
	dev := newTestDevice(t, 3072)

	a, ok := dev.Allocate(1024)
	require.True(t, ok)
	b, ok := dev.Allocate(1024)
	require.True(t, ok)
	c, ok := dev.Allocate(1024)
	require.True(t, ok)
	require.Equal(t, uint64(0), dev.FreeSize())

	dev.Free(a, 1024)
	dev.Free(c, 1024)
	if dev.FreeSize() != 2048 {
		t.Fatalf("FreeSize() = %d, want 2048", dev.FreeSize())
	}

	dev.Free(b, 1024)
	if dev.FreeSize() != 3072 {
		t.Fatalf("FreeSize() = %d, want 3072 after full coalesce", dev.FreeSize())
	}

	// The whole range should be allocatable again as one block, proving the
	// three freed blocks coalesced back into a single free block.
	whole, ok := dev.Allocate(3072)
	if !ok || whole != 0 {
		t.Fatalf("expected single coalesced block covering [0,3072), got ok=%v offset=%d", ok, whole)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	dev := newTestDevice(t, 4096)
	off, ok := dev.Allocate(64)
	require.True(t, ok)

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, dev.Write(off, want))

	got := make([]byte, len(want))
	require.NoError(t, dev.Read(off, got))
	require.Equal(t, want, got)
}

func TestWriteOutOfRange(t *testing.T) {
	dev := newTestDevice(t, 64)
	err := dev.Write(60, make([]byte, 8))
	if err == nil {
		t.Fatal("expected out-of-range write to fail")
	}
}

func TestMarkUnhealthyBlocksIO(t *testing.T) {
	dev := newTestDevice(t, 64)
	dev.MarkUnhealthy()

	if dev.Status() != StatusUnhealthy {
		t.Fatalf("Status() = %v, want Unhealthy", dev.Status())
	}
	if err := dev.Write(0, []byte{1}); err == nil {
		t.Fatal("expected write to unhealthy device to fail")
	}
	if _, ok := dev.Allocate(8); ok {
		t.Fatal("expected allocate on unhealthy device to fail")
	}
}

func TestFreeThenReallocateRestoresCapacity(t *testing.T) {
	dev := newTestDevice(t, 256 * 1024 * 1024)
	off, ok := dev.Allocate(256 * 1024 * 1024)
	require.True(t, ok)
	require.Equal(t, uint64(0), dev.FreeSize())

	dev.Free(off, 256*1024*1024)
	require.Equal(t, uint64(256*1024*1024), dev.FreeSize())

	again, ok := dev.Allocate(256 * 1024 * 1024)
	require.True(t, ok)
	require.Equal(t, uint64(0), again)
	require.Equal(t, uint64(0), dev.FreeSize())
}
