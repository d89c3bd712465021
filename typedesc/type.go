// Package typedesc models the compiler-emitted layout of Rust types: the
// shape, size and alignment of each type, its fields and, for enums, the
// rule that maps discriminant bytes to variants.
package typedesc

import "fmt"

// TypeID identifies a descriptor within a Catalog.
type TypeID string

// Kind is the shape of a type.
type Kind int

// Kind constants.
const (
	// KindInvalid is the zero Kind and never valid in a catalog.
	KindInvalid Kind = iota
	// KindPrimitive is a fixed-width scalar or the unit type.
	KindPrimitive
	// KindTuple is an anonymous tuple.
	KindTuple
	// KindStruct is a named, positional or unit struct.
	KindStruct
	// KindEnum is a tagged union.
	KindEnum
	// KindArray is a fixed-length array stored inline.
	KindArray
	// KindSlice is a fat pointer (data address, element count).
	KindSlice
	// KindPointer is a thin owning, shared or borrowed pointer.
	KindPointer
	// KindStringLike is UTF-8 text behind a fat pointer or growable header.
	KindStringLike
	// KindCollection is a growable sequence (data address, length, capacity).
	KindCollection
	// KindCell is an interior-mutability wrapper around one value.
	KindCell
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "Invalid"
	case KindPrimitive:
		return "Primitive"
	case KindTuple:
		return "Tuple"
	case KindStruct:
		return "Struct"
	case KindEnum:
		return "Enum"
	case KindArray:
		return "Array"
	case KindSlice:
		return "Slice"
	case KindPointer:
		return "Pointer"
	case KindStringLike:
		return "StringLike"
	case KindCollection:
		return "Collection"
	case KindCell:
		return "Cell"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// PrimitiveKind is the scalar type of a KindPrimitive descriptor.
type PrimitiveKind int

// PrimitiveKind constants.
const (
	Unit PrimitiveKind = iota
	Bool
	Char
	I8
	I16
	I32
	I64
	Isize
	U8
	U16
	U32
	U64
	Usize
	F32
	F64
)

var primitiveNames = [...]string{
	Unit:  "()",
	Bool:  "bool",
	Char:  "char",
	I8:    "i8",
	I16:   "i16",
	I32:   "i32",
	I64:   "i64",
	Isize: "isize",
	U8:    "u8",
	U16:   "u16",
	U32:   "u32",
	U64:   "u64",
	Usize: "usize",
	F32:   "f32",
	F64:   "f64",
}

func (p PrimitiveKind) String() string {
	if p >= 0 && int(p) < len(primitiveNames) {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", int(p))
}

// Signed reports whether the primitive is a signed integer.
func (p PrimitiveKind) Signed() bool {
	switch p {
	case I8, I16, I32, I64, Isize:
		return true
	default:
		return false
	}
}

// PointerKind distinguishes the thin pointer flavors.
type PointerKind int

// PointerKind constants.
const (
	// Owning is Box<T>: the pointee is owned and freed with the pointer.
	Owning PointerKind = iota
	// Shared is Rc<T> or Arc<T>: the address points at a control block.
	Shared
	// Reference is &T, &mut T or a raw pointer.
	Reference
)

func (p PointerKind) String() string {
	switch p {
	case Owning:
		return "Owning"
	case Shared:
		return "Shared"
	case Reference:
		return "Reference"
	default:
		return fmt.Sprintf("PointerKind(%d)", int(p))
	}
}

// Field is one member of a struct, tuple, cell or enum variant payload.
// An empty Name marks a positional field.
type Field struct {
	Name   string `msgpack:"n,omitempty"`
	Offset uint64 `msgpack:"o"`
	Type   TypeID `msgpack:"t"`
}

// Variant is one alternative of an enum.
type Variant struct {
	Name string `msgpack:"n"`
	// Tag is the explicit discriminant value; nil for niche-encoded enums.
	Tag    *uint64 `msgpack:"g,omitempty"`
	Fields []Field `msgpack:"f,omitempty"`
}

// DiscriminantKind selects how an enum encodes its active variant.
type DiscriminantKind int

// DiscriminantKind constants.
const (
	// NoDiscriminant is only valid for enums with a single variant.
	NoDiscriminant DiscriminantKind = iota
	// Explicit stores an integer tag in dedicated bytes.
	Explicit
	// Niche reuses invalid bit patterns of a payload field.
	Niche
)

func (k DiscriminantKind) String() string {
	switch k {
	case NoDiscriminant:
		return "None"
	case Explicit:
		return "Explicit"
	case Niche:
		return "Niche"
	default:
		return fmt.Sprintf("DiscriminantKind(%d)", int(k))
	}
}

// Discriminant is the rule, resolved once at catalog load, that identifies
// the active variant from the enum's bytes.
//
// For Explicit, Width bytes at Offset hold the tag that is matched against
// each Variant's Tag.
//
// For Niche, Width bytes at Offset are read. A value inside the inclusive
// range [ValidStart, ValidEnd], which may wrap around, selects DataVariant.
// Any other value v selects NicheVariants[v-NicheStart] (wrapping at Width)
// when that index exists.
type Discriminant struct {
	Kind   DiscriminantKind `msgpack:"k"`
	Offset uint64           `msgpack:"o"`
	Width  uint64           `msgpack:"w"`

	ValidStart    uint64 `msgpack:"vs,omitempty"`
	ValidEnd      uint64 `msgpack:"ve,omitempty"`
	DataVariant   int    `msgpack:"dv,omitempty"`
	NicheStart    uint64 `msgpack:"ns,omitempty"`
	NicheVariants []int  `msgpack:"nv,omitempty"`
}

// SharedLayout locates the pieces of a reference-counted control block,
// relative to the address stored in the pointer.
type SharedLayout struct {
	StrongOffset  uint64 `msgpack:"s"`
	WeakOffset    uint64 `msgpack:"w"`
	PayloadOffset uint64 `msgpack:"p"`
}

// SequenceHeader locates the words of a fat pointer or growable header.
type SequenceHeader struct {
	DataOffset uint64 `msgpack:"d"`
	LenOffset  uint64 `msgpack:"l"`
	CapOffset  uint64 `msgpack:"c,omitempty"`
	HasCap     bool   `msgpack:"h,omitempty"`
}

// Descriptor describes one concrete type. Generic instantiations are
// ordinary descriptors whose field types are already concrete.
type Descriptor struct {
	ID    TypeID `msgpack:"id"`
	Name  string `msgpack:"name"`
	Kind  Kind   `msgpack:"kind"`
	Size  uint64 `msgpack:"size"`
	Align uint64 `msgpack:"align"`

	// WordSize is the target machine width for pointer-bearing kinds.
	WordSize uint64 `msgpack:"word,omitempty"`

	Primitive PrimitiveKind `msgpack:"prim,omitempty"`

	Fields []Field `msgpack:"fields,omitempty"`

	Variants     []Variant    `msgpack:"variants,omitempty"`
	Discriminant Discriminant `msgpack:"disc,omitempty"`

	Elem TypeID `msgpack:"elem,omitempty"`
	Len  uint64 `msgpack:"len,omitempty"`

	Pointer PointerKind  `msgpack:"ptr,omitempty"`
	Pointee TypeID       `msgpack:"pointee,omitempty"`
	Shared  SharedLayout `msgpack:"shared,omitempty"`

	Header SequenceHeader `msgpack:"header,omitempty"`
}

func (d *Descriptor) String() string {
	if d.Name != "" {
		return d.Name
	}
	return string(d.ID)
}

// Positional reports whether the fields are unnamed (tuple struct, tuple,
// tuple variant). A descriptor without fields is not positional.
func Positional(fields []Field) bool {
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if f.Name != "" {
			return false
		}
	}
	return true
}
