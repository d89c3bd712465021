package rustval

import (
	"fmt"
	"os"
	"slices"

	"github.com/dbgvis/rustval/memory"
)

// Image is a raw memory dump file mapped read-only so that its first byte
// appears at a chosen target address. It implements memory.Reader.
type Image struct {
	data []byte
	base uint64
}

// OpenImage maps the dump at path with its first byte at base.
func OpenImage(path string, base uint64) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stats, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stats.Size()
	if size == 0 {
		return &Image{base: base}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("rustval: image %s is too large to map", path)
	}
	if base+uint64(size) < base {
		return nil, fmt.Errorf("rustval: image %s at %#x wraps the address space", path, base)
	}

	data, err := mmap(f, int(size))
	if err != nil {
		return nil, err
	}
	return &Image{data: data, base: base}, nil
}

// Base returns the target address of the first byte.
func (m *Image) Base() uint64 {
	return m.base
}

// Len returns the number of mapped bytes.
func (m *Image) Len() uint64 {
	return uint64(len(m.data))
}

// ReadMemory implements memory.Reader. Reads outside the image fail with
// memory.Unmapped.
func (m *Image) ReadMemory(addr, size uint64) ([]byte, error) {
	end := addr + size
	if addr < m.base || end < addr || end-m.base > uint64(len(m.data)) {
		return nil, &memory.ReadError{Addr: addr, Size: size, Reason: memory.Unmapped}
	}
	start := addr - m.base
	return slices.Clone(m.data[start : start+size]), nil
}

// Close unmaps the image. The Image must not be used afterwards.
func (m *Image) Close() error {
	if m.data == nil {
		return nil
	}
	err := munmap(m.data)
	m.data = nil
	return err
}
