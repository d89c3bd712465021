package decoder

import (
	"encoding/binary"
	"math"

	"github.com/dbgvis/rustval/internal/rverrors"
)

// View is a read-only byte range of target memory starting at a base
// address. It lives for one decode operation; sub views share its bytes.
type View struct {
	addr uint64
	data []byte
}

// NewView creates a [View] over data read from addr.
func NewView(addr uint64, data []byte) View {
	return View{addr: addr, data: data}
}

// Addr returns the base address.
func (v View) Addr() uint64 {
	return v.addr
}

// Len returns the number of bytes in the view.
func (v View) Len() uint64 {
	return uint64(len(v.data))
}

// Bytes returns the underlying bytes for direct access.
func (v View) Bytes() []byte {
	return v.data
}

func (v View) check(offset, size uint64) error {
	if offset+size < offset || offset+size > uint64(len(v.data)) {
		return rverrors.NewInvalidDescriptorError(
			"range [%d, %d) outside %d-byte view at %#x", offset, offset+size, len(v.data), v.addr)
	}
	return nil
}

// Sub returns the view of size bytes at offset.
func (v View) Sub(offset, size uint64) (View, error) {
	if err := v.check(offset, size); err != nil {
		return View{}, err
	}
	return View{addr: v.addr + offset, data: v.data[offset : offset+size]}, nil
}

// Uint reads a little-endian unsigned integer of width bytes at offset.
func (v View) Uint(offset, width uint64) (uint64, error) {
	if err := v.check(offset, width); err != nil {
		return 0, err
	}
	b := v.data[offset : offset+width]
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, rverrors.NewInvalidDescriptorError("unsupported integer width %d", width)
	}
}

// Int reads a little-endian signed integer of width bytes at offset.
func (v View) Int(offset, width uint64) (int64, error) {
	u, err := v.Uint(offset, width)
	if err != nil {
		return 0, err
	}
	shift := 64 - 8*width
	return int64(u<<shift) >> shift, nil
}

// Float32 reads an IEEE-754 single at offset.
func (v View) Float32(offset uint64) (float32, error) {
	u, err := v.Uint(offset, 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(u)), nil
}

// Float64 reads an IEEE-754 double at offset.
func (v View) Float64(offset uint64) (float64, error) {
	u, err := v.Uint(offset, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}
