// Package decoder turns raw target memory into value trees, directed by
// type descriptors.
package decoder

import (
	"fmt"

	"github.com/dbgvis/rustval/internal/rverrors"
	"github.com/dbgvis/rustval/typedesc"
)

// Strategy is the decoding procedure selected for a descriptor.
type Strategy int

// Strategy constants.
const (
	// StrategyOpaque is used for descriptors that cannot be decoded.
	StrategyOpaque Strategy = iota
	// StrategyPrimitive reads a fixed-width scalar.
	StrategyPrimitive
	// StrategyAggregate decodes structs and tuples field by field.
	StrategyAggregate
	// StrategyExplicitEnum matches a stored tag against variant tags.
	StrategyExplicitEnum
	// StrategyNicheEnum resolves the variant from a payload field's value.
	StrategyNicheEnum
	// StrategySingleVariant is an enum with one variant and no tag.
	StrategySingleVariant
	// StrategyArray decodes a fixed-length inline array.
	StrategyArray
	// StrategyFatSlice follows a (data, length) pair.
	StrategyFatSlice
	// StrategyOwningPointer follows Box<T>.
	StrategyOwningPointer
	// StrategySharedPointer follows Rc<T> or Arc<T> into its control block.
	StrategySharedPointer
	// StrategyReference follows &T.
	StrategyReference
	// StrategyCell decodes the wrapped value in place.
	StrategyCell
	// StrategyString decodes UTF-8 text.
	StrategyString
	// StrategyCollection follows a (data, length, capacity) header.
	StrategyCollection
)

// String returns a human-readable name for the Strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyOpaque:
		return "Opaque"
	case StrategyPrimitive:
		return "Primitive"
	case StrategyAggregate:
		return "Aggregate"
	case StrategyExplicitEnum:
		return "ExplicitEnum"
	case StrategyNicheEnum:
		return "NicheEnum"
	case StrategySingleVariant:
		return "SingleVariant"
	case StrategyArray:
		return "Array"
	case StrategyFatSlice:
		return "FatSlice"
	case StrategyOwningPointer:
		return "OwningPointer"
	case StrategySharedPointer:
		return "SharedPointer"
	case StrategyReference:
		return "Reference"
	case StrategyCell:
		return "Cell"
	case StrategyString:
		return "String"
	case StrategyCollection:
		return "Collection"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsIndirect reports whether the strategy issues reads beyond the value's
// own bytes.
func (s Strategy) IsIndirect() bool {
	switch s {
	case StrategyFatSlice, StrategyOwningPointer, StrategySharedPointer,
		StrategyReference, StrategyString, StrategyCollection:
		return true
	default:
		return false
	}
}

// hasMembers reports whether values of the strategy can be decoded member
// by member when their whole range is unreadable.
func (s Strategy) hasMembers() bool {
	switch s {
	case StrategyAggregate, StrategyArray, StrategyCell,
		StrategyExplicitEnum, StrategyNicheEnum, StrategySingleVariant:
		return true
	default:
		return false
	}
}

// Plan is a classified descriptor. Err is set for StrategyOpaque.
type Plan struct {
	Strategy Strategy
	Err      error
}

// Classify selects the decoding strategy for d. It performs no I/O.
func Classify(d *typedesc.Descriptor) Strategy {
	return Compile(d).Strategy
}

// Diagnose returns why d classifies as opaque, or nil.
func Diagnose(d *typedesc.Descriptor) error {
	return Compile(d).Err
}

func opaquePlan(format string, args ...any) Plan {
	return Plan{Strategy: StrategyOpaque, Err: rverrors.NewInvalidDescriptorError(format, args...)}
}

func wordOK(d *typedesc.Descriptor) bool {
	return (d.WordSize == 4 || d.WordSize == 8) && d.Size >= d.WordSize
}

// Compile classifies d and records a diagnostic when it is not decodable.
func Compile(d *typedesc.Descriptor) Plan {
	switch d.Kind {
	case typedesc.KindPrimitive:
		if d.Primitive < typedesc.Unit || d.Primitive > typedesc.F64 {
			return opaquePlan("%s: unknown primitive %v", d, d.Primitive)
		}
		return Plan{Strategy: StrategyPrimitive}
	case typedesc.KindTuple, typedesc.KindStruct:
		return Plan{Strategy: StrategyAggregate}
	case typedesc.KindCell:
		if len(d.Fields) != 1 {
			return opaquePlan("%s: cell wraps %d fields", d, len(d.Fields))
		}
		return Plan{Strategy: StrategyCell}
	case typedesc.KindArray:
		return Plan{Strategy: StrategyArray}
	case typedesc.KindEnum:
		if len(d.Variants) == 0 {
			return opaquePlan("%s: enum without variants", d)
		}
		switch d.Discriminant.Kind {
		case typedesc.Explicit:
			return Plan{Strategy: StrategyExplicitEnum}
		case typedesc.Niche:
			return Plan{Strategy: StrategyNicheEnum}
		case typedesc.NoDiscriminant:
			if len(d.Variants) == 1 {
				return Plan{Strategy: StrategySingleVariant}
			}
			return opaquePlan("%s: %d variants without a discriminant", d, len(d.Variants))
		default:
			return opaquePlan("%s: unknown discriminant %v", d, d.Discriminant.Kind)
		}
	case typedesc.KindSlice:
		if !wordOK(d) {
			return opaquePlan("%s: fat pointer with word size %d", d, d.WordSize)
		}
		return Plan{Strategy: StrategyFatSlice}
	case typedesc.KindStringLike:
		if !wordOK(d) {
			return opaquePlan("%s: string header with word size %d", d, d.WordSize)
		}
		return Plan{Strategy: StrategyString}
	case typedesc.KindCollection:
		if !wordOK(d) || !d.Header.HasCap {
			return opaquePlan("%s: collection without a (data, length, capacity) header", d)
		}
		return Plan{Strategy: StrategyCollection}
	case typedesc.KindPointer:
		if !wordOK(d) {
			return opaquePlan("%s: pointer with word size %d", d, d.WordSize)
		}
		switch d.Pointer {
		case typedesc.Owning:
			return Plan{Strategy: StrategyOwningPointer}
		case typedesc.Shared:
			return Plan{Strategy: StrategySharedPointer}
		case typedesc.Reference:
			return Plan{Strategy: StrategyReference}
		default:
			return opaquePlan("%s: unknown pointer kind %v", d, d.Pointer)
		}
	default:
		return opaquePlan("%s: unrecognized kind %v", d, d.Kind)
	}
}
