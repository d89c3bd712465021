package decoder

import (
	"math"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dbgvis/rustval/internal/rverrors"
	"github.com/dbgvis/rustval/typedesc"
	"github.com/dbgvis/rustval/value"
)

func (d *Decoder) decodeThinPointer(s *state, desc *typedesc.Descriptor, view View, depth int) *value.Value {
	target, err := view.Uint(0, desc.WordSize)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	out := &value.Value{Kind: value.KindIndirection, Type: desc.String(), Address: view.Addr(), Pointer: desc.Pointer}
	if target == 0 {
		// Null is terminal; nothing is read.
		return out
	}
	pointee, err := d.catalog.Resolve(desc.Pointee)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	s.path.PushField("*")
	out.Target = d.decodeAt(s, pointee, target, nil, depth+1)
	s.path.Pop()
	return out
}

// decodeSharedPointer follows Rc<T>/Arc<T>. The stored address points at the
// control block; the payload follows the counts at a descriptor-declared
// offset. The block is only ever read, never owned.
func (d *Decoder) decodeSharedPointer(s *state, desc *typedesc.Descriptor, view View, depth int) *value.Value {
	block, err := view.Uint(0, desc.WordSize)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	out := &value.Value{Kind: value.KindIndirection, Type: desc.String(), Address: view.Addr(), Pointer: desc.Pointer}
	if block == 0 {
		return out
	}
	pointee, err := d.catalog.Resolve(desc.Pointee)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}

	layout := desc.Shared
	if hdr, err := d.read(block, layout.PayloadOffset); err == nil {
		strong, serr := hdr.Uint(layout.StrongOffset, desc.WordSize)
		weak, werr := hdr.Uint(layout.WeakOffset, desc.WordSize)
		if serr == nil && werr == nil {
			out.Counts = &value.Counts{Strong: strong, Weak: weak}
		}
	}

	s.path.PushField("*")
	out.Target = d.decodeAt(s, pointee, block+layout.PayloadOffset, nil, depth+1)
	s.path.Pop()
	return out
}

type seqHeader struct {
	data, length, capacity uint64
}

func readHeader(desc *typedesc.Descriptor, view View) (seqHeader, error) {
	var h seqHeader
	var err error
	if h.data, err = view.Uint(desc.Header.DataOffset, desc.WordSize); err != nil {
		return h, err
	}
	if h.length, err = view.Uint(desc.Header.LenOffset, desc.WordSize); err != nil {
		return h, err
	}
	if desc.Header.HasCap {
		if h.capacity, err = view.Uint(desc.Header.CapOffset, desc.WordSize); err != nil {
			return h, err
		}
	}
	return h, nil
}

// decodeSequence decodes fat slices and growable collections. Exactly
// count*elemSize bytes are requested from the data address, and nothing at
// all for an empty sequence.
func (d *Decoder) decodeSequence(s *state, desc *typedesc.Descriptor, view View, depth int) *value.Value {
	h, err := readHeader(desc, view)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	out := &value.Value{
		Kind: value.KindSequence, Type: desc.String(), Address: view.Addr(),
		Len: h.length, Cap: h.capacity, HasCap: desc.Header.HasCap,
		Elems: []*value.Value{},
	}
	if h.length == 0 {
		return out
	}
	elem, err := d.catalog.Resolve(desc.Elem)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	if h.data == 0 {
		return d.opaque(s, desc, view.Addr(),
			rverrors.NewInvalidDescriptorError("%s: null data pointer with length %d", desc, h.length))
	}

	n := min(h.length, d.opts.MaxSequenceLen)
	out.Truncated = n < h.length
	if elem.Size != 0 && n > math.MaxUint64/elem.Size {
		return d.opaque(s, desc, view.Addr(),
			rverrors.NewInvalidDescriptorError("%s: length %d overflows the address space", desc, h.length))
	}
	// One request covers every element. If it fails, each element is read
	// on its own so that one bad element does not hide the others.
	var parent *View
	if data, err := d.read(h.data, n*elem.Size); err == nil {
		parent = &data
	} else {
		d.log.Debug("sequence read failed, reading elements individually",
			zap.String("type", desc.String()), zap.Uint64("count", n), zap.Error(err))
	}

	out.Elems = make([]*value.Value, n)
	for i := range n {
		s.path.PushIndex(int(i))
		out.Elems[i] = d.member(s, elem.ID, h.data, i*elem.Size, parent, depth+1)
		s.path.Pop()
	}
	return out
}

// decodeString decodes &str and String. Invalid UTF-8 yields an Opaque
// value that still carries the raw bytes.
func (d *Decoder) decodeString(s *state, desc *typedesc.Descriptor, view View) *value.Value {
	h, err := readHeader(desc, view)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	out := &value.Value{
		Kind: value.KindScalar, Type: desc.String(), Address: view.Addr(),
		Len: h.length, Cap: h.capacity, HasCap: desc.Header.HasCap, Scalar: "",
	}
	if h.length == 0 {
		return out
	}
	if h.data == 0 {
		return d.opaque(s, desc, view.Addr(),
			rverrors.NewInvalidDescriptorError("%s: null data pointer with length %d", desc, h.length))
	}

	n := min(h.length, d.opts.MaxSequenceLen)
	data, err := d.read(h.data, n)
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	text := data.Bytes()
	if n < h.length {
		out.Truncated = true
		text = trimPartialRune(text)
	}
	if !utf8.Valid(text) {
		return d.opaque(s, desc, view.Addr(), rverrors.NewMalformedTextError(text))
	}
	out.Scalar = string(text)
	return out
}

// trimPartialRune drops a rune cut in half by truncation.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
