package typedesc

import (
	"fmt"
	"strings"
)

// Member names a field whose offset is computed by a Builder. An empty
// Name makes the field positional.
type Member struct {
	Name string
	Type TypeID
}

// Named returns a named Member.
func Named(name string, t TypeID) Member {
	return Member{Name: name, Type: t}
}

// Pos returns a positional Member.
func Pos(t TypeID) Member {
	return Member{Type: t}
}

// VariantSpec describes an enum variant whose payload a Builder lays out.
type VariantSpec struct {
	Name    string
	Members []Member
}

// V returns a VariantSpec.
func V(name string, members ...Member) VariantSpec {
	return VariantSpec{Name: name, Members: members}
}

// Builder assembles rustc-shaped descriptors for one target word size.
// Aggregates are laid out in declaration order with natural alignment;
// callers needing a reordered layout can Add descriptors directly.
//
// A member type that was never added, or a niche member out of range, is
// recorded and reported by Catalog; the affected layout is meaningless.
type Builder struct {
	word  uint64
	order []TypeID
	types map[TypeID]*Descriptor
	err   error
}

// NewBuilder returns a Builder for a 4- or 8-byte target.
func NewBuilder(wordSize uint64) *Builder {
	return &Builder{word: wordSize, types: make(map[TypeID]*Descriptor)}
}

// WordSize returns the target machine width.
func (b *Builder) WordSize() uint64 {
	return b.word
}

// Add registers d and returns its id. Re-adding an id keeps the first
// descriptor.
func (b *Builder) Add(d Descriptor) TypeID {
	if d.ID == "" {
		d.ID = TypeID(d.Name)
	}
	if _, ok := b.types[d.ID]; !ok {
		b.types[d.ID] = &d
		b.order = append(b.order, d.ID)
	}
	return d.ID
}

// Get returns a registered descriptor.
func (b *Builder) Get(id TypeID) (*Descriptor, bool) {
	d, ok := b.types[id]
	return d, ok
}

// Catalog validates and freezes everything added so far. It returns the
// first layout error recorded by the builder methods.
func (b *Builder) Catalog() (*Catalog, error) {
	if b.err != nil {
		return nil, b.err
	}
	descs := make([]Descriptor, 0, len(b.order))
	for _, id := range b.order {
		descs = append(descs, *b.types[id])
	}
	return NewCatalog(descs...)
}

func (b *Builder) sizeAlign(id TypeID) (uint64, uint64) {
	d, ok := b.types[id]
	if !ok {
		b.fail("typedesc: builder has no type %q", id)
		return 0, 1
	}
	return d.Size, max(d.Align, 1)
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) / a * a
}

// layout places members after start and returns the fields, the end offset
// and the strictest alignment.
func (b *Builder) layout(start uint64, members []Member) ([]Field, uint64, uint64) {
	fields := make([]Field, 0, len(members))
	off, align := start, uint64(1)
	for _, m := range members {
		size, a := b.sizeAlign(m.Type)
		off = alignUp(off, a)
		fields = append(fields, Field{Name: m.Name, Offset: off, Type: m.Type})
		off += size
		align = max(align, a)
	}
	return fields, off, align
}

// Primitive registers a scalar type named after its Rust spelling.
func (b *Builder) Primitive(p PrimitiveKind) TypeID {
	var size uint64
	switch p {
	case Unit:
		size = 0
	case Bool, I8, U8:
		size = 1
	case I16, U16:
		size = 2
	case I32, U32, F32, Char:
		size = 4
	case I64, U64, F64:
		size = 8
	case Isize, Usize:
		size = b.word
	}
	align := max(size, 1)
	if size == 8 && b.word == 4 && p != F64 {
		// i686 aligns 64-bit integers to 4 bytes inside aggregates.
		align = 4
	}
	return b.Add(Descriptor{Name: p.String(), Kind: KindPrimitive, Primitive: p, Size: size, Align: align})
}

// Struct registers a named struct. Without members it is a unit struct.
func (b *Builder) Struct(name string, members ...Member) TypeID {
	fields, end, align := b.layout(0, members)
	return b.Add(Descriptor{Name: name, Kind: KindStruct, Fields: fields, Size: alignUp(end, align), Align: align})
}

// Tuple registers an anonymous tuple.
func (b *Builder) Tuple(elems ...TypeID) TypeID {
	members := make([]Member, len(elems))
	names := make([]string, len(elems))
	for i, e := range elems {
		members[i] = Pos(e)
		names[i] = string(e)
	}
	fields, end, align := b.layout(0, members)
	name := "(" + strings.Join(names, ", ") + ")"
	return b.Add(Descriptor{Name: name, Kind: KindTuple, Fields: fields, Size: alignUp(end, align), Align: align})
}

// Array registers [elem; n].
func (b *Builder) Array(elem TypeID, n uint64) TypeID {
	size, align := b.sizeAlign(elem)
	return b.Add(Descriptor{
		Name: fmt.Sprintf("[%s; %d]", elem, n), Kind: KindArray,
		Elem: elem, Len: n, Size: size * n, Align: align,
	})
}

func (b *Builder) fatHeader() SequenceHeader {
	return SequenceHeader{DataOffset: 0, LenOffset: b.word}
}

func (b *Builder) growableHeader() SequenceHeader {
	return SequenceHeader{DataOffset: 0, CapOffset: b.word, LenOffset: 2 * b.word, HasCap: true}
}

// SliceRef registers &[elem].
func (b *Builder) SliceRef(elem TypeID) TypeID {
	return b.Add(Descriptor{
		Name: "&[" + string(elem) + "]", Kind: KindSlice, Elem: elem,
		Header: b.fatHeader(), WordSize: b.word, Size: 2 * b.word, Align: b.word,
	})
}

// Str registers &str.
func (b *Builder) Str() TypeID {
	u8 := b.Primitive(U8)
	return b.Add(Descriptor{
		Name: "&str", Kind: KindStringLike, Elem: u8,
		Header: b.fatHeader(), WordSize: b.word, Size: 2 * b.word, Align: b.word,
	})
}

// OwnedString registers alloc::string::String.
func (b *Builder) OwnedString() TypeID {
	u8 := b.Primitive(U8)
	return b.Add(Descriptor{
		Name: "alloc::string::String", Kind: KindStringLike, Elem: u8,
		Header: b.growableHeader(), WordSize: b.word, Size: 3 * b.word, Align: b.word,
	})
}

// Vec registers Vec<elem>.
func (b *Builder) Vec(elem TypeID) TypeID {
	return b.Add(Descriptor{
		Name: "Vec<" + string(elem) + ">", Kind: KindCollection, Elem: elem,
		Header: b.growableHeader(), WordSize: b.word, Size: 3 * b.word, Align: b.word,
	})
}

func (b *Builder) pointer(name string, kind PointerKind, pointee TypeID) TypeID {
	d := Descriptor{
		Name: name, Kind: KindPointer, Pointer: kind, Pointee: pointee,
		WordSize: b.word, Size: b.word, Align: b.word,
	}
	if kind == Shared {
		_, align := b.sizeAlign(pointee)
		d.Shared = SharedLayout{StrongOffset: 0, WeakOffset: b.word, PayloadOffset: alignUp(2*b.word, align)}
	}
	return b.Add(d)
}

// Box registers Box<T>.
func (b *Builder) Box(t TypeID) TypeID {
	return b.pointer("Box<"+string(t)+">", Owning, t)
}

// Rc registers Rc<T>.
func (b *Builder) Rc(t TypeID) TypeID {
	return b.pointer("Rc<"+string(t)+">", Shared, t)
}

// Arc registers Arc<T>.
func (b *Builder) Arc(t TypeID) TypeID {
	return b.pointer("Arc<"+string(t)+">", Shared, t)
}

// Ref registers &T.
func (b *Builder) Ref(t TypeID) TypeID {
	return b.pointer("&"+string(t), Reference, t)
}

// Cell registers Cell<T>, which stores T inline.
func (b *Builder) Cell(t TypeID) TypeID {
	size, align := b.sizeAlign(t)
	return b.Add(Descriptor{
		Name: "Cell<" + string(t) + ">", Kind: KindCell,
		Fields: []Field{{Name: "value", Offset: 0, Type: t}},
		Size:   size, Align: align,
	})
}

// RefCell registers RefCell<T>: a borrow flag followed by T.
func (b *Builder) RefCell(t TypeID) TypeID {
	isize := b.Primitive(Isize)
	fields, end, align := b.layout(0, []Member{Named("borrow", isize), Named("value", t)})
	return b.Add(Descriptor{
		Name: "RefCell<" + string(t) + ">", Kind: KindCell,
		Fields: fields[1:], Size: alignUp(end, align), Align: align,
	})
}

// ExplicitEnum registers an enum with a tag of tagWidth bytes at offset
// zero. Variants get tags 0, 1, 2... in order.
func (b *Builder) ExplicitEnum(name string, tagWidth uint64, variants ...VariantSpec) TypeID {
	end, align := tagWidth, tagWidth
	out := make([]Variant, len(variants))
	for i, v := range variants {
		fields, vend, valign := b.layout(tagWidth, v.Members)
		tag := uint64(i)
		out[i] = Variant{Name: v.Name, Tag: &tag, Fields: fields}
		end, align = max(end, vend), max(align, valign)
	}
	return b.Add(Descriptor{
		Name: name, Kind: KindEnum, Variants: out,
		Discriminant: Discriminant{Kind: Explicit, Offset: 0, Width: tagWidth},
		Size:         alignUp(end, align), Align: align,
	})
}

// NicheEnum registers an enum whose first variant carries data and whose
// remaining variants are fieldless and encoded in the invalid values of the
// data variant's member nicheMember. Values in [validStart, validEnd] mean
// the data variant; nicheStart, nicheStart+1... encode the empty variants.
func (b *Builder) NicheEnum(name string, data VariantSpec, nicheMember int,
	validStart, validEnd, nicheStart uint64, empty ...string,
) TypeID {
	fields, end, align := b.layout(0, data.Members)
	if nicheMember < 0 || nicheMember >= len(fields) {
		b.fail("typedesc: %s: niche member %d out of range", name, nicheMember)
		return TypeID(name)
	}
	nicheSize, _ := b.sizeAlign(fields[nicheMember].Type)
	variants := []Variant{{Name: data.Name, Fields: fields}}
	nicheVariants := make([]int, len(empty))
	for i, e := range empty {
		variants = append(variants, Variant{Name: e})
		nicheVariants[i] = i + 1
	}
	return b.Add(Descriptor{
		Name: name, Kind: KindEnum, Variants: variants,
		Discriminant: Discriminant{
			Kind: Niche, Offset: fields[nicheMember].Offset, Width: nicheSize,
			ValidStart: validStart, ValidEnd: validEnd,
			DataVariant: 0, NicheStart: nicheStart, NicheVariants: nicheVariants,
		},
		Size: alignUp(end, align), Align: align,
	})
}

// Option registers Option<T> with an explicit one-byte tag.
func (b *Builder) Option(t TypeID) TypeID {
	return b.ExplicitEnum("Option<"+string(t)+">", 1, V("None"), V("Some", Pos(t)))
}

// OptionPtr registers Option<T> for a non-null pointer T, using the null
// pointer as the None niche.
func (b *Builder) OptionPtr(t TypeID) TypeID {
	size, _ := b.sizeAlign(t)
	validEnd := ^uint64(0)
	if size < 8 {
		validEnd = uint64(1)<<(8*size) - 1
	}
	return b.NicheEnum("Option<"+string(t)+">", V("Some", Pos(t)), 0, 1, validEnd, 0, "None")
}
