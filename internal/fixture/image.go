// Package fixture builds synthetic debuggee images: a type catalog plus the
// memory a compiled Rust program would hold for a set of local variables.
package fixture

import (
	"encoding/binary"
	"fmt"

	"github.com/dbgvis/rustval/memory"
	"github.com/dbgvis/rustval/typedesc"
)

// gap separates allocations so that every allocation is its own region and
// reads running past one land in unmapped memory.
const gap = 64

// Image allocates target memory and lays out values in it.
type Image struct {
	Types *typedesc.Builder
	Mem   *memory.Regions

	word  uint64
	stack uint64
	heap  uint64
}

// NewImage returns an empty image whose stack and heap allocations start at
// the given addresses.
func NewImage(word, stackBase, heapBase uint64) *Image {
	mem, _ := memory.NewRegions()
	return &Image{
		Types: typedesc.NewBuilder(word),
		Mem:   mem,
		word:  word,
		stack: stackBase,
		heap:  heapBase,
	}
}

// WordSize returns the target machine width.
func (m *Image) WordSize() uint64 {
	return m.word
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) / a * a
}

func (m *Image) alloc(cursor *uint64, data []byte, align uint64) uint64 {
	addr := alignUp(*cursor, max(align, 16))
	if len(data) > 0 {
		if err := m.Mem.Map(addr, data); err != nil {
			panic(fmt.Sprintf("fixture: %v", err))
		}
	}
	*cursor = addr + uint64(len(data)) + gap
	return addr
}

// Heap maps data at a fresh heap address and returns it.
func (m *Image) Heap(data []byte) uint64 {
	return m.alloc(&m.heap, data, m.word)
}

// Stack maps data at a fresh stack address and returns it.
func (m *Image) Stack(data []byte) uint64 {
	return m.alloc(&m.stack, data, m.word)
}

// Zero returns a zeroed buffer the size of type id.
func (m *Image) Zero(id typedesc.TypeID) []byte {
	d, ok := m.Types.Get(id)
	if !ok {
		panic(fmt.Sprintf("fixture: unknown type %q", id))
	}
	return make([]byte, d.Size)
}

// Put stores v little-endian in width bytes at off.
func Put(buf []byte, off, width, v uint64) {
	switch width {
	case 1:
		buf[off] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf[off:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf[off:], uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf[off:], v)
	default:
		panic(fmt.Sprintf("fixture: width %d", width))
	}
}

// Uint encodes v in width bytes.
func Uint(width, v uint64) []byte {
	buf := make([]byte, width)
	Put(buf, 0, width, v)
	return buf
}

// Word encodes v in one target word.
func (m *Image) Word(v uint64) []byte {
	return Uint(m.word, v)
}

// Words concatenates word encodings of vs.
func (m *Image) Words(vs ...uint64) []byte {
	out := make([]byte, 0, len(vs)*int(m.word))
	for _, v := range vs {
		out = append(out, m.Word(v)...)
	}
	return out
}

// danglingData stands in for the well-aligned dangling pointer Rust keeps in
// empty slices.
func (m *Image) danglingData() uint64 {
	return m.word
}

// StrRef stores text on the heap and returns an encoded &str.
func (m *Image) StrRef(text string) []byte {
	if text == "" {
		return m.Words(m.danglingData(), 0)
	}
	return m.Words(m.Heap([]byte(text)), uint64(len(text)))
}

// OwnedString stores text on the heap and returns an encoded String with
// the given spare capacity.
func (m *Image) OwnedString(text string, spare uint64) []byte {
	n := uint64(len(text))
	if n+spare == 0 {
		return m.Words(m.danglingData(), 0, 0)
	}
	buf := make([]byte, n+spare)
	copy(buf, text)
	return m.Words(m.Heap(buf), n+spare, n)
}

// Vec stores the concatenated elems on the heap and returns an encoded
// Vec header.
func (m *Image) Vec(elems ...[]byte) []byte {
	var buf []byte
	for _, e := range elems {
		buf = append(buf, e...)
	}
	if len(elems) == 0 {
		return m.Words(m.danglingData(), 0, 0)
	}
	n := uint64(len(elems))
	return m.Words(m.Heap(buf), n, n)
}

// Box stores payload on the heap and returns the encoded pointer.
func (m *Image) Box(payload []byte) []byte {
	return m.Word(m.Heap(payload))
}

// Shared stores an Rc/Arc control block on the heap and returns the encoded
// pointer to it. payloadOffset comes from the pointer's descriptor.
func (m *Image) Shared(strong, weak, payloadOffset uint64, payload []byte) []byte {
	block := make([]byte, payloadOffset+uint64(len(payload)))
	Put(block, 0, m.word, strong)
	Put(block, m.word, m.word, weak)
	copy(block[payloadOffset:], payload)
	return m.Word(m.Heap(block))
}
