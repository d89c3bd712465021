// Package layout exposes the decoding strategies selected for Rust type
// descriptors, for tools that want to explain how a type will be read.
package layout

import (
	"github.com/dbgvis/rustval/internal/decoder"
	"github.com/dbgvis/rustval/typedesc"
)

// Strategy is the decoding procedure selected for a descriptor.
type Strategy = decoder.Strategy

// Strategy constants.
const (
	StrategyOpaque        = decoder.StrategyOpaque
	StrategyPrimitive     = decoder.StrategyPrimitive
	StrategyAggregate     = decoder.StrategyAggregate
	StrategyExplicitEnum  = decoder.StrategyExplicitEnum
	StrategyNicheEnum     = decoder.StrategyNicheEnum
	StrategySingleVariant = decoder.StrategySingleVariant
	StrategyArray         = decoder.StrategyArray
	StrategyFatSlice      = decoder.StrategyFatSlice
	StrategyOwningPointer = decoder.StrategyOwningPointer
	StrategySharedPointer = decoder.StrategySharedPointer
	StrategyReference     = decoder.StrategyReference
	StrategyCell          = decoder.StrategyCell
	StrategyString        = decoder.StrategyString
	StrategyCollection    = decoder.StrategyCollection
)

// Classify selects the strategy for d. It is pure.
func Classify(d *typedesc.Descriptor) Strategy {
	return decoder.Classify(d)
}

// Diagnose explains why d classifies as StrategyOpaque, or returns nil.
func Diagnose(d *typedesc.Descriptor) error {
	return decoder.Diagnose(d)
}

// Explain returns the strategy for every type in c, keyed by id.
func Explain(c *typedesc.Catalog) map[typedesc.TypeID]Strategy {
	out := make(map[typedesc.TypeID]Strategy, c.Len())
	for _, id := range c.IDs() {
		d, err := c.Resolve(id)
		if err != nil {
			continue
		}
		out[id] = decoder.Classify(d)
	}
	return out
}
