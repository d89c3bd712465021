package decoder

import (
	"go.uber.org/zap"

	"github.com/dbgvis/rustval/internal/rverrors"
	"github.com/dbgvis/rustval/typedesc"
	"github.com/dbgvis/rustval/value"
)

// readDiscriminant reads the raw discriminant of an enum at addr. With a nil
// view only the discriminant bytes are requested.
func (d *Decoder) readDiscriminant(desc *typedesc.Descriptor, addr uint64, view *View) (uint64, error) {
	disc := desc.Discriminant
	if view != nil {
		return view.Uint(disc.Offset, disc.Width)
	}
	tag, err := d.read(addr+disc.Offset, disc.Width)
	if err != nil {
		return 0, err
	}
	return tag.Uint(0, disc.Width)
}

// resolveVariant identifies the active variant of an enum from its raw
// discriminant.
func resolveVariant(desc *typedesc.Descriptor, strategy Strategy, raw uint64) (int, error) {
	disc := desc.Discriminant
	switch strategy {
	case StrategySingleVariant:
		return 0, nil
	case StrategyExplicitEnum:
		for i, v := range desc.Variants {
			if v.Tag != nil && *v.Tag == raw {
				return i, nil
			}
		}
		return 0, rverrors.NewUnrecognizedEncodingError(desc.String(), raw)
	case StrategyNicheEnum:
		// A value inside the valid range always selects the data variant,
		// even when the fallback table would also claim it.
		if disc.Contains(raw) {
			return disc.DataVariant, nil
		}
		if idx, ok := disc.NicheIndex(raw); ok && idx >= 0 && idx < len(desc.Variants) {
			return idx, nil
		}
		return 0, rverrors.NewUnrecognizedEncodingError(desc.String(), raw)
	default:
		return 0, rverrors.NewInvalidDescriptorError("%s: strategy %v is not an enum", desc, strategy)
	}
}

// decodeEnum decodes an enum at addr. view is nil when the enum's bytes
// could not be read as a whole; the discriminant and each payload field are
// then read on their own.
func (d *Decoder) decodeEnum(s *state, desc *typedesc.Descriptor, strategy Strategy, addr uint64, view *View, depth int) *value.Value {
	var raw uint64
	if strategy != StrategySingleVariant {
		var err error
		if raw, err = d.readDiscriminant(desc, addr, view); err != nil {
			return d.opaque(s, desc, addr, err)
		}
	}
	idx, err := resolveVariant(desc, strategy, raw)
	if err != nil {
		if _, ok := err.(rverrors.UnrecognizedEncodingError); ok {
			d.log.Warn("unrecognized enum encoding",
				zap.String("type", desc.String()), zap.Uint64("addr", addr), zap.Error(err))
		}
		return d.opaque(s, desc, addr, err)
	}

	variant := desc.Variants[idx]
	s.path.PushField(variant.Name)
	defer s.path.Pop()

	// The payload is decoded from the same bytes. For niche encodings the
	// niche field is part of the payload and is read again as data.
	return &value.Value{
		Kind:       value.KindVariant,
		Type:       desc.String(),
		Address:    addr,
		Variant:    variant.Name,
		Fields:     d.decodeFields(s, variant.Fields, addr, view, depth),
		Positional: typedesc.Positional(variant.Fields),
	}
}
