// Package value holds the decoded representation of a target variable.
//
// A Value tree is produced fresh by every decode and owns its children
// exclusively. It is never refreshed in place: the target may change between
// inspections, so callers decode again instead of reusing a tree.
package value

import (
	"errors"
	"fmt"

	"github.com/dbgvis/rustval/typedesc"
)

// Kind tags a decoded node.
type Kind int

// Kind constants.
const (
	// KindOpaque is a terminal node carrying a diagnostic instead of a value.
	KindOpaque Kind = iota
	// KindScalar is a number, bool, char, unit or text.
	KindScalar
	// KindAggregate is a struct or tuple.
	KindAggregate
	// KindVariant is an enum value with its resolved variant.
	KindVariant
	// KindSequence is an array, slice, collection or byte sequence.
	KindSequence
	// KindIndirection is a followed pointer.
	KindIndirection
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindOpaque:
		return "Opaque"
	case KindScalar:
		return "Scalar"
	case KindAggregate:
		return "Aggregate"
	case KindVariant:
		return "Variant"
	case KindSequence:
		return "Sequence"
	case KindIndirection:
		return "Indirection"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// UnitValue is the scalar payload of ().
type UnitValue struct{}

// Unit is the only UnitValue.
var Unit = UnitValue{}

// Field is a named or positional child of an aggregate or variant.
type Field struct {
	Name  string
	Value *Value
}

// Counts are the reference counts of a shared pointer's control block.
type Counts struct {
	Strong uint64
	Weak   uint64
}

// Value is one node of a decoded tree.
type Value struct {
	Kind    Kind
	Type    string
	Address uint64

	// Scalar is int64, uint64, float32, float64, bool, rune, string or
	// UnitValue.
	Scalar any

	// Fields holds aggregate members or the variant payload in declared
	// order. Positional reports that the members are unnamed.
	Fields     []Field
	Positional bool
	// Anonymous marks a tuple, which has no type name to display.
	Anonymous bool

	Variant string

	Elems     []*Value
	Len       uint64
	Cap       uint64
	HasCap    bool
	Truncated bool

	// Target is the dereferenced value; nil means the pointer was null.
	Target  *Value
	Pointer typedesc.PointerKind
	Counts  *Counts

	Err error
	Raw []byte
}

// IsAbsent reports whether v is a null indirection.
func (v *Value) IsAbsent() bool {
	return v.Kind == KindIndirection && v.Target == nil
}

// Field returns the child named name.
func (v *Value) Field(name string) (*Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Deref follows indirections until a non-pointer node. A null pointer
// returns the indirection itself.
func (v *Value) Deref() *Value {
	for v.Kind == KindIndirection && v.Target != nil {
		v = v.Target
	}
	return v
}

// Walk calls fn for v and every descendant in depth-first order until fn
// returns false. path is only valid for the duration of the call.
func (v *Value) Walk(fn func(path []string, n *Value) bool) {
	v.walk(nil, fn)
}

func (v *Value) walk(path []string, fn func([]string, *Value) bool) bool {
	if !fn(path, v) {
		return false
	}
	for i, f := range v.Fields {
		name := f.Name
		if name == "" {
			name = fmt.Sprint(i)
		}
		if !f.Value.walk(append(path, name), fn) {
			return false
		}
	}
	for i, e := range v.Elems {
		if !e.walk(append(path, fmt.Sprint(i)), fn) {
			return false
		}
	}
	if v.Target != nil {
		return v.Target.walk(append(path, "*"), fn)
	}
	return true
}

// Opaques returns every Opaque node in the tree.
func (v *Value) Opaques() []*Value {
	var out []*Value
	v.Walk(func(_ []string, n *Value) bool {
		if n.Kind == KindOpaque {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Equal reports whether two trees are structurally identical. Diagnostics
// are compared by message.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Type != b.Type || a.Address != b.Address ||
		a.Scalar != b.Scalar || a.Variant != b.Variant || a.Positional != b.Positional || a.Anonymous != b.Anonymous ||
		a.Len != b.Len || a.Cap != b.Cap || a.HasCap != b.HasCap || a.Truncated != b.Truncated ||
		a.Pointer != b.Pointer || string(a.Raw) != string(b.Raw) {
		return false
	}
	if (a.Counts == nil) != (b.Counts == nil) || a.Counts != nil && *a.Counts != *b.Counts {
		return false
	}
	if (a.Err == nil) != (b.Err == nil) || a.Err != nil && a.Err.Error() != b.Err.Error() {
		return false
	}
	if len(a.Fields) != len(b.Fields) || len(a.Elems) != len(b.Elems) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Value, b.Fields[i].Value) {
			return false
		}
	}
	for i := range a.Elems {
		if !Equal(a.Elems[i], b.Elems[i]) {
			return false
		}
	}
	return Equal(a.Target, b.Target)
}

// Opaque builds a diagnostic node.
func Opaque(typeName string, addr uint64, err error) *Value {
	v := &Value{Kind: KindOpaque, Type: typeName, Address: addr, Err: err}
	var raw interface{ RawBytes() []byte }
	if errors.As(err, &raw) {
		v.Raw = raw.RawBytes()
	}
	return v
}
