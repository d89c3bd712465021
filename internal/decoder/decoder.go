package decoder

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dbgvis/rustval/cache"
	"github.com/dbgvis/rustval/internal/rverrors"
	"github.com/dbgvis/rustval/memory"
	"github.com/dbgvis/rustval/typedesc"
	"github.com/dbgvis/rustval/value"
)

const (
	// DefaultMaxDepth bounds nesting of fields, payloads and indirections.
	DefaultMaxDepth = 64
	// DefaultMaxSequenceLen bounds the elements decoded per sequence.
	DefaultMaxSequenceLen = 1 << 16
)

// Options configure a Decoder. Zero values select the defaults.
type Options struct {
	MaxDepth       int
	MaxSequenceLen uint64
	Logger         *zap.Logger
	Plans          cache.Provider
}

// Decoder decodes values of catalog types from target memory. It holds no
// per-call state and is safe for concurrent use when its memory reader is.
type Decoder struct {
	catalog *typedesc.Catalog
	mem     memory.Reader
	opts    Options
	log     *zap.Logger
}

// New creates a [Decoder].
func New(catalog *typedesc.Catalog, mem memory.Reader, opts Options) *Decoder {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxSequenceLen == 0 {
		opts.MaxSequenceLen = DefaultMaxSequenceLen
	}
	if opts.Plans == nil {
		opts.Plans = cache.NewNoCacheProvider()
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}
	return &Decoder{catalog: catalog, mem: mem, opts: opts, log: log}
}

// state is the per-call decoding state.
type state struct {
	plans cache.Cache
	path  *rverrors.PathBuilder
}

// Decode decodes the value of type id stored at addr. It never fails: every
// problem is reported as an Opaque node in the smallest affected subtree.
func (d *Decoder) Decode(id typedesc.TypeID, addr uint64) *value.Value {
	desc, err := d.catalog.Resolve(id)
	if err != nil {
		d.log.Warn("decode of unknown type", zap.String("type", string(id)), zap.Uint64("addr", addr))
		return value.Opaque(string(id), addr, rverrors.WrapWithContext(err, addr, nil))
	}
	plans := d.opts.Plans.Acquire()
	defer d.opts.Plans.Release(plans)

	s := &state{plans: plans, path: rverrors.NewPathBuilder()}
	return d.decodeAt(s, desc, addr, nil, 0)
}

func (d *Decoder) plan(s *state, desc *typedesc.Descriptor) Plan {
	if cached, ok := s.plans.Get(string(desc.ID)); ok {
		if p, ok := cached.(Plan); ok {
			return p
		}
	}
	p := Compile(desc)
	if p.Err != nil {
		d.log.Debug("descriptor classified as opaque", zap.String("type", string(desc.ID)), zap.Error(p.Err))
	}
	s.plans.Set(string(desc.ID), p)
	return p
}

func (d *Decoder) read(addr, size uint64) (View, error) {
	if size == 0 {
		return NewView(addr, nil), nil
	}
	data, err := d.mem.ReadMemory(addr, size)
	if err != nil {
		return View{}, rverrors.NewReadFailureError(addr, size, err)
	}
	if uint64(len(data)) != size {
		return View{}, rverrors.NewReadFailureError(addr, size,
			fmt.Errorf("short read of %d bytes", len(data)))
	}
	return NewView(addr, data), nil
}

func (d *Decoder) opaque(s *state, desc *typedesc.Descriptor, addr uint64, err error) *value.Value {
	var rf rverrors.ReadFailureError
	if errors.As(err, &rf) {
		d.log.Warn("target memory read failed",
			zap.String("type", desc.String()), zap.String("path", s.path.Build()), zap.Error(err))
	}
	return value.Opaque(desc.String(), addr, d.wrapError(s, err, addr))
}

// decodeAt decodes desc at addr. view holds the value's bytes when the
// caller already read them; with a nil view decodeAt reads them itself.
func (d *Decoder) decodeAt(s *state, desc *typedesc.Descriptor, addr uint64, view *View, depth int) *value.Value {
	if depth > d.opts.MaxDepth {
		return d.opaque(s, desc, addr, rverrors.NewDepthExceededError(d.opts.MaxDepth))
	}
	p := d.plan(s, desc)
	if p.Strategy == StrategyOpaque {
		return d.opaque(s, desc, addr, p.Err)
	}

	if view == nil {
		v, err := d.read(addr, desc.Size)
		switch {
		case err == nil:
			view = &v
		case p.Strategy.hasMembers():
			// Fall back to reading each member on its own so that one bad
			// member does not hide its siblings.
			d.log.Debug("aggregate read failed, reading members individually",
				zap.String("type", desc.String()), zap.Error(err))
		default:
			return d.opaque(s, desc, addr, err)
		}
	}

	switch p.Strategy {
	case StrategyPrimitive:
		return d.decodePrimitive(s, desc, *view)
	case StrategyAggregate:
		return d.decodeAggregate(s, desc, addr, view, depth)
	case StrategyArray:
		return d.decodeArray(s, desc, addr, view, depth)
	case StrategyCell:
		return d.decodeCell(s, desc, addr, view, depth)
	case StrategyExplicitEnum, StrategyNicheEnum, StrategySingleVariant:
		return d.decodeEnum(s, desc, p.Strategy, addr, view, depth)
	case StrategyOwningPointer, StrategyReference:
		return d.decodeThinPointer(s, desc, *view, depth)
	case StrategySharedPointer:
		return d.decodeSharedPointer(s, desc, *view, depth)
	case StrategyFatSlice, StrategyCollection:
		return d.decodeSequence(s, desc, *view, depth)
	case StrategyString:
		return d.decodeString(s, desc, *view)
	default:
		return d.opaque(s, desc, addr, rverrors.NewInvalidDescriptorError("unhandled strategy %v", p.Strategy))
	}
}

// member decodes a child of type id at offset inside the parent. parent may
// be nil when the parent's own bytes could not be read.
func (d *Decoder) member(s *state, id typedesc.TypeID, base, offset uint64, parent *View, depth int) *value.Value {
	desc, err := d.catalog.Resolve(id)
	if err != nil {
		return value.Opaque(string(id), base+offset, d.wrapError(s, err, base+offset))
	}
	if parent == nil {
		return d.decodeAt(s, desc, base+offset, nil, depth)
	}
	sub, err := parent.Sub(offset, desc.Size)
	if err != nil {
		return d.opaque(s, desc, base+offset, err)
	}
	return d.decodeAt(s, desc, base+offset, &sub, depth)
}

func (d *Decoder) decodePrimitive(s *state, desc *typedesc.Descriptor, view View) *value.Value {
	out := &value.Value{Kind: value.KindScalar, Type: desc.String(), Address: view.Addr()}
	var err error
	switch desc.Primitive {
	case typedesc.Unit:
		out.Scalar = value.Unit
	case typedesc.Bool:
		var b uint64
		if b, err = view.Uint(0, 1); err == nil {
			if b > 1 {
				return d.opaque(s, desc, view.Addr(), rverrors.NewUnrecognizedEncodingError(desc.String(), b))
			}
			out.Scalar = b == 1
		}
	case typedesc.Char:
		var c uint64
		if c, err = view.Uint(0, 4); err == nil {
			if !utf8.ValidRune(rune(c)) {
				return d.opaque(s, desc, view.Addr(), rverrors.NewUnrecognizedEncodingError(desc.String(), c))
			}
			out.Scalar = rune(c)
		}
	case typedesc.I8, typedesc.I16, typedesc.I32, typedesc.I64, typedesc.Isize:
		out.Scalar, err = view.Int(0, desc.Size)
	case typedesc.U8, typedesc.U16, typedesc.U32, typedesc.U64, typedesc.Usize:
		out.Scalar, err = view.Uint(0, desc.Size)
	case typedesc.F32:
		out.Scalar, err = view.Float32(0)
	case typedesc.F64:
		out.Scalar, err = view.Float64(0)
	}
	if err != nil {
		return d.opaque(s, desc, view.Addr(), err)
	}
	return out
}

func (d *Decoder) decodeFields(s *state, fields []typedesc.Field, addr uint64, view *View, depth int) []value.Field {
	out := make([]value.Field, len(fields))
	for i, f := range fields {
		name := f.Name
		if name == "" {
			s.path.PushIndex(i)
		} else {
			s.path.PushField(name)
		}
		out[i] = value.Field{Name: name, Value: d.member(s, f.Type, addr, f.Offset, view, depth+1)}
		s.path.Pop()
	}
	return out
}

func (d *Decoder) decodeAggregate(s *state, desc *typedesc.Descriptor, addr uint64, view *View, depth int) *value.Value {
	return &value.Value{
		Kind:       value.KindAggregate,
		Type:       desc.String(),
		Address:    addr,
		Fields:     d.decodeFields(s, desc.Fields, addr, view, depth),
		Positional: typedesc.Positional(desc.Fields),
		Anonymous:  desc.Kind == typedesc.KindTuple,
	}
}

// decodeCell is transparent: the wrapper contributes no node of its own.
func (d *Decoder) decodeCell(s *state, desc *typedesc.Descriptor, addr uint64, view *View, depth int) *value.Value {
	f := desc.Fields[0]
	return d.member(s, f.Type, addr, f.Offset, view, depth+1)
}

func (d *Decoder) decodeArray(s *state, desc *typedesc.Descriptor, addr uint64, view *View, depth int) *value.Value {
	out := &value.Value{Kind: value.KindSequence, Type: desc.String(), Address: addr, Len: desc.Len}
	if desc.Len == 0 {
		out.Elems = []*value.Value{}
		return out
	}
	elem, err := d.catalog.Resolve(desc.Elem)
	if err != nil {
		return d.opaque(s, desc, addr, err)
	}
	n := min(desc.Len, d.opts.MaxSequenceLen)
	out.Truncated = n < desc.Len
	out.Elems = make([]*value.Value, n)
	for i := range n {
		s.path.PushIndex(int(i))
		out.Elems[i] = d.member(s, elem.ID, addr, i*elem.Size, view, depth+1)
		s.path.Pop()
	}
	return out
}
