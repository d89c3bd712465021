package typedesc

import (
	"fmt"
	"slices"

	"github.com/go-analyze/bulk"

	"github.com/dbgvis/rustval/internal/rverrors"
)

// Catalog is the session-wide, read-only set of type descriptors. It is
// safe for concurrent use once built.
type Catalog struct {
	types    map[TypeID]*Descriptor
	warnings []string
}

// NewCatalog validates descs and freezes them into a Catalog. Enum encodings
// that could classify one bit pattern as two variants are rejected.
// Recoverable inconsistencies, such as dangling type references, are kept as
// warnings because the affected subtrees still decode to Opaque values.
func NewCatalog(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{types: make(map[TypeID]*Descriptor, len(descs))}
	for i := range descs {
		d := descs[i]
		if d.ID == "" {
			return nil, rverrors.NewInvalidDescriptorError("descriptor %d (%s) has no id", i, d.Name)
		}
		if _, dup := c.types[d.ID]; dup {
			return nil, rverrors.NewInvalidDescriptorError("duplicate type id %q", d.ID)
		}
		c.types[d.ID] = &d
	}
	for _, id := range c.IDs() {
		if err := c.validate(c.types[id]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Resolve returns the descriptor for id.
func (c *Catalog) Resolve(id TypeID) (*Descriptor, error) {
	if d, ok := c.types[id]; ok {
		return d, nil
	}
	return nil, rverrors.NewUnknownTypeError(string(id))
}

// IDs returns every type id in sorted order.
func (c *Catalog) IDs() []TypeID {
	ids := bulk.MapKeysSlice(c.types)
	slices.Sort(ids)
	return ids
}

// Descriptors returns copies of all descriptors in id order.
func (c *Catalog) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.types))
	for _, id := range c.IDs() {
		out = append(out, *c.types[id])
	}
	return out
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.types)
}

// Warnings returns the non-fatal problems found while validating.
func (c *Catalog) Warnings() []string {
	return slices.Clone(c.warnings)
}

func (c *Catalog) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *Catalog) checkRef(d *Descriptor, what string, id TypeID) {
	if id == "" {
		c.warnf("%s: missing %s type", d.ID, what)
		return
	}
	if _, ok := c.types[id]; !ok {
		c.warnf("%s: %s references unknown type %q", d.ID, what, id)
	}
}

func (c *Catalog) checkFields(d *Descriptor, fields []Field, size uint64) {
	for _, f := range fields {
		c.checkRef(d, "field "+f.Name, f.Type)
		if child, ok := c.types[f.Type]; ok && f.Offset+child.Size > size {
			c.warnf("%s: field %q at offset %d overruns size %d", d.ID, f.Name, f.Offset, size)
		}
	}
}

func (c *Catalog) validate(d *Descriptor) error {
	switch d.Kind {
	case KindPrimitive:
	case KindTuple, KindStruct, KindCell:
		c.checkFields(d, d.Fields, d.Size)
	case KindArray:
		c.checkRef(d, "element", d.Elem)
	case KindSlice, KindStringLike, KindCollection:
		c.checkRef(d, "element", d.Elem)
		if d.WordSize != 4 && d.WordSize != 8 {
			return rverrors.NewInvalidDescriptorError("%s: unsupported word size %d", d.ID, d.WordSize)
		}
	case KindPointer:
		c.checkRef(d, "pointee", d.Pointee)
		if d.WordSize != 4 && d.WordSize != 8 {
			return rverrors.NewInvalidDescriptorError("%s: unsupported word size %d", d.ID, d.WordSize)
		}
	case KindEnum:
		for _, v := range d.Variants {
			c.checkFields(d, v.Fields, d.Size)
		}
		return c.validateEnum(d)
	default:
		c.warnf("%s: unrecognized kind %v", d.ID, d.Kind)
	}
	return nil
}

func validWidth(w uint64) bool {
	return w == 1 || w == 2 || w == 4 || w == 8
}

func (c *Catalog) validateEnum(d *Descriptor) error {
	disc := d.Discriminant
	switch disc.Kind {
	case NoDiscriminant:
		if len(d.Variants) != 1 {
			return rverrors.NewInvalidDescriptorError(
				"%s: %d variants without a discriminant", d.ID, len(d.Variants))
		}
		return nil
	case Explicit, Niche:
	default:
		return rverrors.NewInvalidDescriptorError("%s: unknown discriminant kind %v", d.ID, disc.Kind)
	}

	if !validWidth(disc.Width) {
		return rverrors.NewInvalidDescriptorError("%s: discriminant width %d", d.ID, disc.Width)
	}
	if disc.Offset+disc.Width > d.Size {
		return rverrors.NewInvalidDescriptorError(
			"%s: discriminant at offset %d overruns size %d", d.ID, disc.Offset, d.Size)
	}

	if disc.Kind == Explicit {
		seen := make(map[uint64]string, len(d.Variants))
		for _, v := range d.Variants {
			if v.Tag == nil {
				return rverrors.NewInvalidDescriptorError("%s: variant %s has no tag", d.ID, v.Name)
			}
			tag := *v.Tag
			if tag&^disc.Mask() != 0 {
				return rverrors.NewInvalidDescriptorError(
					"%s: tag %d of %s does not fit %d bytes", d.ID, tag, v.Name, disc.Width)
			}
			if other, dup := seen[tag]; dup {
				return rverrors.NewInvalidDescriptorError(
					"%s: variants %s and %s share tag %d", d.ID, other, v.Name, tag)
			}
			seen[tag] = v.Name
		}
		return nil
	}

	if disc.DataVariant < 0 || disc.DataVariant >= len(d.Variants) {
		return rverrors.NewInvalidDescriptorError("%s: data variant %d out of range", d.ID, disc.DataVariant)
	}
	if len(disc.NicheVariants) == 0 {
		return rverrors.NewInvalidDescriptorError("%s: niche encoding without fallback variants", d.ID)
	}
	seen := map[int]bool{disc.DataVariant: true}
	for i, idx := range disc.NicheVariants {
		if idx < 0 || idx >= len(d.Variants) {
			return rverrors.NewInvalidDescriptorError("%s: niche variant %d out of range", d.ID, idx)
		}
		if seen[idx] {
			return rverrors.NewInvalidDescriptorError(
				"%s: variant %s encoded twice", d.ID, d.Variants[idx].Name)
		}
		seen[idx] = true
		if v := (disc.NicheStart + uint64(i)) & disc.Mask(); disc.Contains(v) {
			c.warnf("%s: niche value %#x of %s lies inside the valid range and is shadowed by %s",
				d.ID, v, d.Variants[idx].Name, d.Variants[disc.DataVariant].Name)
		}
	}
	return nil
}

// Mask returns the bit mask covering Width bytes.
func (d Discriminant) Mask() uint64 {
	if d.Width >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(8*d.Width) - 1
}

// Contains reports whether v lies inside the inclusive, possibly wrapping,
// valid range of the data variant.
func (d Discriminant) Contains(v uint64) bool {
	start, end := d.ValidStart&d.Mask(), d.ValidEnd&d.Mask()
	if start <= end {
		return v >= start && v <= end
	}
	return v >= start || v <= end
}

// NicheIndex maps a value outside the valid range to the variant it encodes.
func (d Discriminant) NicheIndex(v uint64) (int, bool) {
	rel := (v - d.NicheStart) & d.Mask()
	if rel >= uint64(len(d.NicheVariants)) {
		return 0, false
	}
	return d.NicheVariants[rel], true
}
