// Package memdevice implements the per-backing-file variable-size allocator
// described for MemDevice: a single host-backed mmap with a coalescing
// free-list, indexed both by offset (for coalescing) and by size (for
// first-fit allocation).
package memdevice

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Status is the health state of a device. Unhealthy is permanent for the
// lifetime of the process once set.
type Status int

const (
	StatusHealthy Status = iota
	StatusUnhealthy
)

func (s Status) String() string {
	if s == StatusHealthy {
		return "healthy"
	}
	return "unhealthy"
}

type freeBlock struct {
	offset uint64
	size   uint64
}

// Device owns one contiguous mmap and its free-list allocator. Every method
// that reads or changes mutable state takes the Device's one Mutex (see
// SPEC_FULL.md section 4.1); this fabric's own event loop never contends it,
// since all device operations run on the single core-state goroutine.
type Device struct {
	mu sync.Mutex

	path string
	file *os.File
	data []byte
	size uint64

	freeSize uint64
	status   Status

	byOffset []freeBlock // sorted ascending by offset
	bySize   []freeBlock // sorted ascending by (size, offset)
}

// Open mmaps path, which must already exist and be at least size bytes, and
// seeds the allocator with one free block covering the whole range.
func Open(path string, size uint64) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("memdevice: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("memdevice: stat %s: %w", path, err)
	}
	if uint64(info.Size()) < size {
		f.Close()
		return nil, fmt.Errorf("memdevice: %s is %d bytes, need at least %d", path, info.Size(), size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("memdevice: mmap %s: %w", path, err)
	}

	return &Device{
		path:     path,
		file:     f,
		data:     data,
		size:     size,
		freeSize: size,
		status:   StatusHealthy,
		byOffset: []freeBlock{{offset: 0, size: size}},
		bySize:   []freeBlock{{offset: 0, size: size}},
	}, nil
}

// Close unmaps the device and closes its backing file. Allocator state is
// discarded; a Device is never reopened once closed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	if d.data != nil {
		if err := unix.Munmap(d.data); err != nil {
			errs = append(errs, err)
		}
		d.data = nil
	}
	if err := d.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("memdevice: close %s: %v", d.path, errs)
	}
	return nil
}

func (d *Device) Path() string { return d.path }
func (d *Device) Size() uint64 { return d.size }

// Status reports the device's current health.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// FreeSize reports the current total size of all free blocks. Exposed
// primarily for tests asserting the allocator invariants in SPEC_FULL.md
// section 8.
func (d *Device) FreeSize() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freeSize
}

// MarkUnhealthy is the failure-injection entry point used by the admin
// FAIL_REPLICA path. It is permanent: there is no corresponding
// mark-healthy operation in this fabric's lifetime model.
func (d *Device) MarkUnhealthy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusUnhealthy
}

// Allocate reserves n bytes using first-fit-by-size and returns their
// offset. Returns ok=false if the device is unhealthy or no free block is
// large enough.
func (d *Device) Allocate(n uint64) (offset uint64, ok bool) {
	if n == 0 {
		return 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != StatusHealthy {
		return 0, false
	}
	idx := sort.Search(len(d.bySize), func(i int) bool { return d.bySize[i].size >= n })
	if idx == len(d.bySize) {
		return 0, false
	}
	block := d.bySize[idx]

	d.removeBySize(block)
	d.removeByOffset(block.offset)

	if remainder := block.size - n; remainder > 0 {
		rem := freeBlock{offset: block.offset + n, size: remainder}
		d.insertByOffset(rem)
		d.insertBySize(rem)
	}
	d.freeSize -= n
	return block.offset, true
}

// Free returns [offset, offset+n) to the allocator, zeroing the region and
// coalescing with adjacent free blocks. The caller must pass exactly the
// (offset, n) of a prior successful Allocate; behavior is undefined
// otherwise.
func (d *Device) Free(offset, n uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := offset; i < offset+n && i < uint64(len(d.data)); i++ {
		d.data[i] = 0
	}

	pos := sort.Search(len(d.byOffset), func(i int) bool { return d.byOffset[i].offset > offset })

	mergedOffset, mergedSize := offset, n
	hasNext := pos < len(d.byOffset) && offset+n == d.byOffset[pos].offset
	hasPrev := pos > 0 && d.byOffset[pos-1].offset+d.byOffset[pos-1].size == offset

	if hasNext {
		next := d.byOffset[pos]
		mergedSize += next.size
		d.removeBySize(next)
		d.removeByOffset(next.offset)
	}
	if hasPrev {
		prev := d.byOffset[pos-1]
		mergedOffset = prev.offset
		mergedSize += prev.size
		d.removeBySize(prev)
		d.removeByOffset(prev.offset)
	}

	merged := freeBlock{offset: mergedOffset, size: mergedSize}
	d.insertByOffset(merged)
	d.insertBySize(merged)
	d.freeSize += n
}

// Write copies value (little-endian, width len(value)) into the device at
// offset. Fails if the device is unhealthy or the write runs past size.
func (d *Device) Write(offset uint64, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusHealthy {
		return fmt.Errorf("memdevice: %s is unhealthy", d.path)
	}
	if offset+uint64(len(value)) > d.size {
		return fmt.Errorf("memdevice: write [%d,%d) exceeds size %d", offset, offset+uint64(len(value)), d.size)
	}
	copy(d.data[offset:], value)
	return nil
}

// Read copies len(out) bytes from offset into out. Fails if the device is
// unhealthy or the read runs past size.
func (d *Device) Read(offset uint64, out []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusHealthy {
		return fmt.Errorf("memdevice: %s is unhealthy", d.path)
	}
	if offset+uint64(len(out)) > d.size {
		return fmt.Errorf("memdevice: read [%d,%d) exceeds size %d", offset, offset+uint64(len(out)), d.size)
	}
	copy(out, d.data[offset:offset+uint64(len(out))])
	return nil
}

func (d *Device) insertByOffset(b freeBlock) {
	i := sort.Search(len(d.byOffset), func(i int) bool { return d.byOffset[i].offset > b.offset })
	d.byOffset = append(d.byOffset, freeBlock{})
	copy(d.byOffset[i+1:], d.byOffset[i:])
	d.byOffset[i] = b
}

func (d *Device) removeByOffset(offset uint64) {
	i := sort.Search(len(d.byOffset), func(i int) bool { return d.byOffset[i].offset >= offset })
	if i < len(d.byOffset) && d.byOffset[i].offset == offset {
		d.byOffset = append(d.byOffset[:i], d.byOffset[i+1:]...)
	}
}

func (d *Device) insertBySize(b freeBlock) {
	i := sort.Search(len(d.bySize), func(i int) bool {
		if d.bySize[i].size != b.size {
			return d.bySize[i].size > b.size
		}
		return d.bySize[i].offset > b.offset
	})
	d.bySize = append(d.bySize, freeBlock{})
	copy(d.bySize[i+1:], d.bySize[i:])
	d.bySize[i] = b
}

func (d *Device) removeBySize(b freeBlock) {
	i := sort.Search(len(d.bySize), func(i int) bool {
		if d.bySize[i].size != b.size {
			return d.bySize[i].size > b.size
		}
		return d.bySize[i].offset >= b.offset
	})
	if i < len(d.bySize) && d.bySize[i].offset == b.offset && d.bySize[i].size == b.size {
		d.bySize = append(d.bySize[:i], d.bySize[i+1:]...)
	}
}
