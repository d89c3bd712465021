// Package memory defines how the decoder reads target memory and provides
// in-process readers for images, snapshots and tests.
package memory

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Reader reads target memory. Implementations return exactly size bytes or
// an error; a *ReadError describes why the range is unavailable.
type Reader interface {
	ReadMemory(addr, size uint64) ([]byte, error)
}

// Reason classifies a failed read.
type Reason int

// Reason constants.
const (
	Unmapped Reason = iota
	AccessDenied
)

func (r Reason) String() string {
	switch r {
	case Unmapped:
		return "unmapped"
	case AccessDenied:
		return "access denied"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// ReadError is returned when a range cannot be read.
type ReadError struct {
	Addr   uint64
	Size   uint64
	Reason Reason
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %d bytes at %#x: %v", e.Size, e.Addr, e.Reason)
}

// Region is a contiguous block of mapped target memory.
type Region struct {
	Addr uint64 `msgpack:"a"`
	Data []byte `msgpack:"d"`
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Addr + uint64(len(r.Data))
}

// Regions is a sparse memory image. A read must fall entirely inside one
// region. It is safe for concurrent reads once populated.
type Regions struct {
	mu      sync.RWMutex
	regions []Region // sorted by Addr, non-overlapping
	denied  []Region
}

// NewRegions returns an image populated with regions.
func NewRegions(regions ...Region) (*Regions, error) {
	r := &Regions{}
	for _, reg := range regions {
		if err := r.Map(reg.Addr, reg.Data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Map adds a region. Overlapping an existing region is an error.
func (r *Regions) Map(addr uint64, data []byte) error {
	if addr+uint64(len(data)) < addr {
		return fmt.Errorf("region at %#x wraps the address space", addr)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := Region{Addr: addr, Data: slices.Clone(data)}
	i := sort.Search(len(r.regions), func(i int) bool { return r.regions[i].Addr >= addr })
	if i > 0 && r.regions[i-1].End() > addr {
		return fmt.Errorf("region at %#x overlaps region at %#x", addr, r.regions[i-1].Addr)
	}
	if i < len(r.regions) && reg.End() > r.regions[i].Addr {
		return fmt.Errorf("region at %#x overlaps region at %#x", addr, r.regions[i].Addr)
	}
	r.regions = slices.Insert(r.regions, i, reg)
	return nil
}

// Deny makes reads touching [addr, addr+size) fail with AccessDenied, even
// when the bytes are mapped.
func (r *Regions) Deny(addr, size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied = append(r.denied, Region{Addr: addr, Data: make([]byte, size)})
}

// Snapshot returns copies of all regions in address order.
func (r *Regions) Snapshot() []Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Region, len(r.regions))
	for i, reg := range r.regions {
		out[i] = Region{Addr: reg.Addr, Data: slices.Clone(reg.Data)}
	}
	return out
}

// ReadMemory implements Reader.
func (r *Regions) ReadMemory(addr, size uint64) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	end := addr + size
	if end < addr {
		return nil, &ReadError{Addr: addr, Size: size, Reason: Unmapped}
	}
	for _, d := range r.denied {
		if addr < d.End() && d.Addr < end || size == 0 && addr >= d.Addr && addr < d.End() {
			return nil, &ReadError{Addr: addr, Size: size, Reason: AccessDenied}
		}
	}
	i := sort.Search(len(r.regions), func(i int) bool { return r.regions[i].End() > addr })
	if i == len(r.regions) || r.regions[i].Addr > addr || r.regions[i].End() < end {
		return nil, &ReadError{Addr: addr, Size: size, Reason: Unmapped}
	}
	reg := r.regions[i]
	start := addr - reg.Addr
	return slices.Clone(reg.Data[start : start+size]), nil
}
