package decoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dbgvis/rustval/cache"
	"github.com/dbgvis/rustval/internal/fixture"
	"github.com/dbgvis/rustval/internal/rverrors"
	"github.com/dbgvis/rustval/memory"
	"github.com/dbgvis/rustval/typedesc"
	"github.com/dbgvis/rustval/value"
)

const (
	stackBase = 0x7000_0000
	heapBase  = 0x1000_0000
	unmapped  = 0xdead_0000
)

func newImage(word uint64) *fixture.Image {
	return fixture.NewImage(word, stackBase, heapBase)
}

// newTestDecoder freezes the image and wraps its memory in a Recorder.
func newTestDecoder(t *testing.T, img *fixture.Image, opts Options) (*Decoder, *memory.Recorder) {
	t.Helper()
	catalog, err := img.Types.Catalog()
	require.NoError(t, err)
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	rec := memory.NewRecorder(img.Mem)
	return New(catalog, rec, opts), rec
}

func requireOpaque[E error](t *testing.T, v *value.Value) E {
	t.Helper()
	require.Equal(t, value.KindOpaque, v.Kind, "expected opaque, got %v", v.Kind)
	var target E
	require.ErrorAs(t, v.Err, &target)
	return target
}

func TestDecodePrimitives(t *testing.T) {
	img := newImage(8)
	b := img.Types
	tests := []struct {
		name     string
		typ      typedesc.TypeID
		data     []byte
		expected any
	}{
		{"unit", b.Primitive(typedesc.Unit), nil, value.Unit},
		{"bool false", b.Primitive(typedesc.Bool), []byte{0}, false},
		{"bool true", b.Primitive(typedesc.Bool), []byte{1}, true},
		{"char", b.Primitive(typedesc.Char), fixture.Uint(4, 'ß'), 'ß'},
		{"i8", b.Primitive(typedesc.I8), []byte{0xff}, int64(-1)},
		{"i16", b.Primitive(typedesc.I16), fixture.Uint(2, 0x8000), int64(math.MinInt16)},
		{"i32", b.Primitive(typedesc.I32), fixture.Uint(4, 3), int64(3)},
		{"i64", b.Primitive(typedesc.I64), fixture.Uint(8, math.MaxUint64), int64(-1)},
		{"isize", b.Primitive(typedesc.Isize), fixture.Uint(8, 0xfffffffffffffffe), int64(-2)},
		{"u8", b.Primitive(typedesc.U8), []byte{0xff}, uint64(255)},
		{"u16", b.Primitive(typedesc.U16), fixture.Uint(2, 0x1234), uint64(0x1234)},
		{"u32", b.Primitive(typedesc.U32), fixture.Uint(4, 3), uint64(3)},
		{"u64", b.Primitive(typedesc.U64), fixture.Uint(8, math.MaxUint64), uint64(math.MaxUint64)},
		{"usize", b.Primitive(typedesc.Usize), fixture.Uint(8, 4), uint64(4)},
		{"f32", b.Primitive(typedesc.F32), fixture.Uint(4, uint64(math.Float32bits(1.5))), float32(1.5)},
		{"f64", b.Primitive(typedesc.F64), fixture.Uint(8, math.Float64bits(5.5)), 5.5},
	}
	addrs := make([]uint64, len(tests))
	for i, tt := range tests {
		addrs[i] = img.Stack(tt.data)
	}
	d, _ := newTestDecoder(t, img, Options{})

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := d.Decode(tt.typ, addrs[i])
			require.Equal(t, value.KindScalar, v.Kind)
			require.Equal(t, tt.expected, v.Scalar)
			require.Equal(t, string(tt.typ), v.Type)
			require.Equal(t, addrs[i], v.Address)
		})
	}
}

func TestDecodePrimitiveUnrecognized(t *testing.T) {
	img := newImage(8)
	boolean := img.Types.Primitive(typedesc.Bool)
	char := img.Types.Primitive(typedesc.Char)
	badBool := img.Stack([]byte{2})
	surrogate := img.Stack(fixture.Uint(4, 0xd800))
	d, _ := newTestDecoder(t, img, Options{})

	err := requireOpaque[rverrors.UnrecognizedEncodingError](t, d.Decode(boolean, badBool))
	require.Equal(t, uint64(2), err.Value)
	err = requireOpaque[rverrors.UnrecognizedEncodingError](t, d.Decode(char, surrogate))
	require.Equal(t, uint64(0xd800), err.Value)
}

func TestDecodeUnknownType(t *testing.T) {
	d, rec := newTestDecoder(t, newImage(8), Options{})
	v := d.Decode("no::such::Type", 0x1234)
	err := requireOpaque[rverrors.UnknownTypeError](t, v)
	require.Equal(t, "no::such::Type", err.ID)
	require.Equal(t, uint64(0x1234), v.Address)
	require.Empty(t, rec.Requests())
}

func TestDecodeStructs(t *testing.T) {
	img := newImage(8)
	b := img.Types
	i32 := b.Primitive(typedesc.I32)
	u64 := b.Primitive(typedesc.U64)
	named := b.Struct("Point", typedesc.Named("x", i32), typedesc.Named("y", u64))
	positional := b.Struct("Pair", typedesc.Pos(i32), typedesc.Pos(i32))
	unit := b.Struct("Marker")
	tuple := b.Tuple(i32, u64)

	buf := img.Zero(named)
	fixture.Put(buf, 0, 4, 0xfffffffb)
	fixture.Put(buf, 8, 8, 9)
	namedAddr := img.Stack(buf)
	pairAddr := img.Stack(append(fixture.Uint(4, 1), fixture.Uint(4, 2)...))
	tupleAddr := img.Stack(buf)
	unitAddr := img.Stack(nil)
	d, rec := newTestDecoder(t, img, Options{})

	v := d.Decode(named, namedAddr)
	require.Equal(t, value.KindAggregate, v.Kind)
	require.False(t, v.Positional)
	x, ok := v.Field("x")
	require.True(t, ok)
	require.Equal(t, int64(-5), x.Scalar)
	require.Equal(t, namedAddr, x.Address)
	y, ok := v.Field("y")
	require.True(t, ok)
	require.Equal(t, uint64(9), y.Scalar)
	require.Equal(t, namedAddr+8, y.Address)

	v = d.Decode(positional, pairAddr)
	require.True(t, v.Positional)
	require.False(t, v.Anonymous)
	require.Len(t, v.Fields, 2)
	require.Equal(t, int64(2), v.Fields[1].Value.Scalar)

	v = d.Decode(tuple, tupleAddr)
	require.True(t, v.Positional)
	require.True(t, v.Anonymous)
	require.Equal(t, "(i32, u64)", v.Type)

	rec.Reset()
	v = d.Decode(unit, unitAddr)
	require.Equal(t, value.KindAggregate, v.Kind)
	require.Empty(t, v.Fields)
	require.Empty(t, rec.Requests(), "zero-sized values issue no reads")
}

func TestDecodeCellIsTransparent(t *testing.T) {
	img := newImage(4)
	i32 := img.Types.Primitive(typedesc.I32)
	cell := img.Types.Cell(i32)
	refCell := img.Types.RefCell(i32)
	cellAddr := img.Stack(fixture.Uint(4, 5))
	refCellAddr := img.Stack(append(fixture.Uint(4, 0), fixture.Uint(4, 6)...))
	d, _ := newTestDecoder(t, img, Options{})

	v := d.Decode(cell, cellAddr)
	require.Equal(t, value.KindScalar, v.Kind)
	require.Equal(t, int64(5), v.Scalar)

	v = d.Decode(refCell, refCellAddr)
	require.Equal(t, int64(6), v.Scalar)
	require.Equal(t, refCellAddr+4, v.Address)
}

func TestDecodeExplicitEnum(t *testing.T) {
	img := newImage(8)
	i32 := img.Types.Primitive(typedesc.I32)
	option := img.Types.Option(i32)

	some := img.Zero(option)
	fixture.Put(some, 0, 1, 1)
	fixture.Put(some, 4, 4, 42)
	someAddr := img.Stack(some)
	noneAddr := img.Stack(img.Zero(option))
	bad := img.Zero(option)
	fixture.Put(bad, 0, 1, 7)
	badAddr := img.Stack(bad)

	core, logs := observer.New(zapcore.WarnLevel)
	d, _ := newTestDecoder(t, img, Options{Logger: zap.New(core)})

	v := d.Decode(option, someAddr)
	require.Equal(t, value.KindVariant, v.Kind)
	require.Equal(t, "Some", v.Variant)
	require.True(t, v.Positional)
	require.Len(t, v.Fields, 1)
	require.Equal(t, int64(42), v.Fields[0].Value.Scalar)

	v = d.Decode(option, noneAddr)
	require.Equal(t, "None", v.Variant)
	require.Empty(t, v.Fields)

	v = d.Decode(option, badAddr)
	err := requireOpaque[rverrors.UnrecognizedEncodingError](t, v)
	require.Equal(t, uint64(7), err.Value)
	require.Equal(t, 1, logs.FilterMessage("unrecognized enum encoding").Len())
}

// nicheEnum is an enum whose u8 payload field reserves 254 and 255 for two
// fieldless variants.
func nicheEnum(img *fixture.Image) typedesc.TypeID {
	u8 := img.Types.Primitive(typedesc.U8)
	return img.Types.NicheEnum("Niche",
		typedesc.V("Data", typedesc.Named("x", u8)), 0,
		0, 253, 254, "A", "B")
}

func TestDecodeNicheEnum(t *testing.T) {
	tests := map[byte]string{
		0:   "Data",
		17:  "Data",
		253: "Data",
		254: "A",
		255: "B",
	}
	img := newImage(8)
	id := nicheEnum(img)
	addrs := make(map[byte]uint64, len(tests))
	for raw := range tests {
		addrs[raw] = img.Stack([]byte{raw})
	}
	d, _ := newTestDecoder(t, img, Options{})

	for raw, expected := range tests {
		t.Run(expected, func(t *testing.T) {
			v := d.Decode(id, addrs[raw])
			require.Equal(t, value.KindVariant, v.Kind)
			require.Equal(t, expected, v.Variant)
			if expected == "Data" {
				x, ok := v.Field("x")
				require.True(t, ok)
				require.Equal(t, uint64(raw), x.Scalar)
			} else {
				require.Empty(t, v.Fields)
			}
		})
	}
}

func TestNicheRoundTrip(t *testing.T) {
	img := newImage(8)
	id := nicheEnum(img)
	desc, ok := img.Types.Get(id)
	require.True(t, ok)

	// Encode every fieldless variant at its niche value and decode it back.
	addrs := make([]uint64, len(desc.Discriminant.NicheVariants))
	for i := range desc.Discriminant.NicheVariants {
		addrs[i] = img.Stack([]byte{byte(desc.Discriminant.NicheStart + uint64(i))})
	}
	d, _ := newTestDecoder(t, img, Options{})
	for i, idx := range desc.Discriminant.NicheVariants {
		v := d.Decode(id, addrs[i])
		require.Equal(t, desc.Variants[idx].Name, v.Variant)
	}
}

func TestNichePointerRoundTrip(t *testing.T) {
	for _, word := range []uint64{4, 8} {
		img := newImage(word)
		b := img.Types
		box := b.Box(b.Primitive(typedesc.I32))
		// The payload pointer is never below 3, leaving 0, 1 and 2 for the
		// fieldless variants.
		validEnd := ^uint64(0) >> (64 - 8*word)
		id := b.NicheEnum("Handle", typedesc.V("Open", typedesc.Pos(box)), 0,
			3, validEnd, 0, "Closed", "Pending", "Lost")
		desc, ok := b.Get(id)
		require.True(t, ok)

		want := []string{"Open", "Closed", "Pending", "Lost"}
		addrs := []uint64{img.Stack(img.Box(fixture.Uint(4, 42)))}
		for i := range desc.Discriminant.NicheVariants {
			addrs = append(addrs, img.Stack(img.Word(desc.Discriminant.NicheStart+uint64(i))))
		}
		d, _ := newTestDecoder(t, img, Options{})

		seen := make(map[string]bool)
		for i, addr := range addrs {
			v := d.Decode(id, addr)
			require.Equal(t, value.KindVariant, v.Kind)
			require.Equal(t, want[i], v.Variant)
			seen[v.Variant] = true
			if i == 0 {
				require.Len(t, v.Fields, 1)
				require.Equal(t, int64(42), v.Fields[0].Value.Target.Scalar)
			} else {
				require.Empty(t, v.Fields)
			}
		}
		require.Len(t, seen, len(want))
	}
}

func TestNicheValidRangeWins(t *testing.T) {
	img := newImage(8)
	u8 := img.Types.Primitive(typedesc.U8)
	// The niche value 200 also lies inside the valid range.
	id := img.Types.NicheEnum("Overlap",
		typedesc.V("Data", typedesc.Named("x", u8)), 0,
		0, 200, 200, "Empty")
	addr := img.Stack([]byte{200})
	catalog, err := img.Types.Catalog()
	require.NoError(t, err)
	require.NotEmpty(t, catalog.Warnings())

	d := New(catalog, img.Mem, Options{Logger: zaptest.NewLogger(t)})
	v := d.Decode(id, addr)
	require.Equal(t, "Data", v.Variant)
}

func TestNicheUnrecognized(t *testing.T) {
	img := newImage(8)
	u8 := img.Types.Primitive(typedesc.U8)
	id := img.Types.NicheEnum("Sparse",
		typedesc.V("Data", typedesc.Named("x", u8)), 0,
		0, 100, 101, "Empty")
	addr := img.Stack([]byte{150})
	d, _ := newTestDecoder(t, img, Options{})

	err := requireOpaque[rverrors.UnrecognizedEncodingError](t, d.Decode(id, addr))
	require.Equal(t, uint64(150), err.Value)
}

func TestNicheWrappingRange(t *testing.T) {
	img := newImage(8)
	u8 := img.Types.Primitive(typedesc.U8)
	// Valid values are 2..=255 and 0; 1 encodes the empty variant.
	id := img.Types.NicheEnum("Wrapping",
		typedesc.V("Data", typedesc.Named("x", u8)), 0,
		2, 0, 1, "Empty")
	zero := img.Stack([]byte{0})
	one := img.Stack([]byte{1})
	high := img.Stack([]byte{255})
	d, _ := newTestDecoder(t, img, Options{})

	require.Equal(t, "Data", d.Decode(id, zero).Variant)
	require.Equal(t, "Empty", d.Decode(id, one).Variant)
	require.Equal(t, "Data", d.Decode(id, high).Variant)
}

func TestNicheVariantWithPayloadOutsideNiche(t *testing.T) {
	p := fixture.MustBuild(8)
	for _, name := range []string{"result_value", "result_error"} {
		v, ok := p.Lookup(name)
		require.True(t, ok)
		d := New(p.Catalog, p.Memory, Options{Logger: zaptest.NewLogger(t)})
		out := d.Decode(v.Type, v.Addr)
		require.Equal(t, value.KindVariant, out.Kind)
		require.Len(t, out.Fields, 1)
		if name == "result_value" {
			require.Equal(t, "Ok", out.Variant)
			require.Equal(t, int64(8), out.Fields[0].Value.Scalar)
		} else {
			require.Equal(t, "Err", out.Variant)
			require.Equal(t, "Errawr", out.Fields[0].Value.Scalar)
		}
	}
}

func TestNullPointerIsAbsent(t *testing.T) {
	img := newImage(8)
	i32 := img.Types.Primitive(typedesc.I32)
	box := img.Types.Box(i32)
	ref := img.Types.Ref(i32)
	rc := img.Types.Rc(i32)
	null := img.Stack(img.Word(0))
	d, rec := newTestDecoder(t, img, Options{})

	for _, id := range []typedesc.TypeID{box, ref, rc} {
		rec.Reset()
		v := d.Decode(id, null)
		require.Equal(t, value.KindIndirection, v.Kind)
		require.True(t, v.IsAbsent())
		require.Equal(t, []memory.Request{{Addr: null, Size: 8}}, rec.Requests())
	}
}

func TestSharedPointerCounts(t *testing.T) {
	img := newImage(8)
	i32 := img.Types.Primitive(typedesc.I32)
	rc := img.Types.Rc(i32)
	desc, _ := img.Types.Get(rc)
	ptr := img.Shared(3, 1, desc.Shared.PayloadOffset, fixture.Uint(4, 5))
	addr := img.Stack(ptr)
	block := uint64(0)
	for i := range ptr {
		block |= uint64(ptr[i]) << (8 * i)
	}
	d, rec := newTestDecoder(t, img, Options{})

	v := d.Decode(rc, addr)
	require.Equal(t, value.KindIndirection, v.Kind)
	require.Equal(t, typedesc.Shared, v.Pointer)
	require.Equal(t, &value.Counts{Strong: 3, Weak: 1}, v.Counts)
	require.Equal(t, int64(5), v.Target.Scalar)
	require.Equal(t, block+desc.Shared.PayloadOffset, v.Target.Address)

	// Unreadable counts are omitted; the payload still decodes.
	rec.FailAt(block, memory.AccessDenied)
	v = d.Decode(rc, addr)
	require.Nil(t, v.Counts)
	require.Equal(t, int64(5), v.Target.Scalar)
}

func TestSequenceEmptyIssuesNoRead(t *testing.T) {
	img := newImage(8)
	i32 := img.Types.Primitive(typedesc.I32)
	slice := img.Types.SliceRef(i32)
	vec := img.Types.Vec(i32)
	str := img.Types.Str()
	sliceAddr := img.Stack(img.Words(unmapped, 0))
	vecAddr := img.Stack(img.Vec())
	strAddr := img.Stack(img.StrRef(""))
	d, rec := newTestDecoder(t, img, Options{})

	tests := map[string]struct {
		id   typedesc.TypeID
		addr uint64
		size uint64
	}{
		"slice": {slice, sliceAddr, 16},
		"vec":   {vec, vecAddr, 24},
		"str":   {str, strAddr, 16},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec.Reset()
			v := d.Decode(tt.id, tt.addr)
			require.NotEqual(t, value.KindOpaque, v.Kind)
			require.Equal(t, uint64(0), v.Len)
			require.Equal(t, []memory.Request{{Addr: tt.addr, Size: tt.size}}, rec.Requests())
		})
	}
}

func TestFatSliceReadsExactBytes(t *testing.T) {
	for _, word := range []uint64{4, 8} {
		img := newImage(word)
		u16 := img.Types.Primitive(typedesc.U16)
		slice := img.Types.SliceRef(u16)
		var elems []byte
		for i := range 5 {
			elems = append(elems, fixture.Uint(2, uint64(100+i))...)
		}
		data := img.Heap(elems)
		addr := img.Stack(img.Words(data, 5))
		d, rec := newTestDecoder(t, img, Options{})

		v := d.Decode(slice, addr)
		require.Equal(t, value.KindSequence, v.Kind)
		require.Len(t, v.Elems, 5)
		require.Equal(t, uint64(104), v.Elems[4].Scalar)
		require.Equal(t, data+8, v.Elems[4].Address)
		require.Equal(t, []memory.Request{
			{Addr: addr, Size: 2 * word},
			{Addr: data, Size: 10},
		}, rec.Requests())
	}
}

func TestCollectionUsesLengthNotCapacity(t *testing.T) {
	img := newImage(8)
	i32 := img.Types.Primitive(typedesc.I32)
	vec := img.Types.Vec(i32)
	data := img.Heap(make([]byte, 16))
	addr := img.Stack(img.Words(data, 4, 2))
	d, rec := newTestDecoder(t, img, Options{})

	v := d.Decode(vec, addr)
	require.Equal(t, uint64(2), v.Len)
	require.Equal(t, uint64(4), v.Cap)
	require.True(t, v.HasCap)
	require.Len(t, v.Elems, 2)
	require.Equal(t, uint64(24+8), rec.BytesRequested())
}

func TestSequenceTruncation(t *testing.T) {
	img := newImage(8)
	u8 := img.Types.Primitive(typedesc.U8)
	arr := img.Types.Array(u8, 10)
	vec := img.Types.Vec(u8)
	arrAddr := img.Stack(make([]byte, 10))
	data := img.Heap(make([]byte, 10))
	vecAddr := img.Stack(img.Words(data, 10, 10))
	d, rec := newTestDecoder(t, img, Options{MaxSequenceLen: 4})

	v := d.Decode(arr, arrAddr)
	require.True(t, v.Truncated)
	require.Len(t, v.Elems, 4)
	require.Equal(t, uint64(10), v.Len)

	rec.Reset()
	v = d.Decode(vec, vecAddr)
	require.True(t, v.Truncated)
	require.Len(t, v.Elems, 4)
	require.Equal(t, []memory.Request{{Addr: vecAddr, Size: 24}, {Addr: data, Size: 4}}, rec.Requests())
}

func TestDecodeStrings(t *testing.T) {
	img := newImage(8)
	str := img.Types.Str()
	owned := img.Types.OwnedString()
	strAddr := img.Stack(img.StrRef("héllo"))
	ownedAddr := img.Stack(img.OwnedString("lazy brown fox", 2))
	d, _ := newTestDecoder(t, img, Options{})

	v := d.Decode(str, strAddr)
	require.Equal(t, value.KindScalar, v.Kind)
	require.Equal(t, "héllo", v.Scalar)
	require.Equal(t, uint64(6), v.Len)
	require.False(t, v.HasCap)

	v = d.Decode(owned, ownedAddr)
	require.Equal(t, "lazy brown fox", v.Scalar)
	require.Equal(t, uint64(14), v.Len)
	require.Equal(t, uint64(16), v.Cap)
}

func TestStringTruncationKeepsWholeRunes(t *testing.T) {
	img := newImage(8)
	str := img.Types.Str()
	addr := img.Stack(img.StrRef("héllo"))
	d, _ := newTestDecoder(t, img, Options{MaxSequenceLen: 2})

	v := d.Decode(str, addr)
	require.Equal(t, "h", v.Scalar)
	require.True(t, v.Truncated)
	require.Equal(t, uint64(6), v.Len)
}

func TestMalformedText(t *testing.T) {
	img := newImage(8)
	str := img.Types.Str()
	raw := []byte{'o', 'k', 0xff, 0xfe}
	addr := img.Stack(img.Words(img.Heap(raw), uint64(len(raw))))
	d, _ := newTestDecoder(t, img, Options{})

	v := d.Decode(str, addr)
	err := requireOpaque[rverrors.MalformedTextError](t, v)
	require.Equal(t, raw, err.Raw)
	require.Equal(t, raw, v.Raw)
}

func TestDepthBound(t *testing.T) {
	img := newImage(8)
	b := img.Types
	i32 := b.Primitive(typedesc.I32)
	boxed := b.Box(b.Box(b.Box(i32)))
	inner := img.Box(fixture.Uint(4, 1))
	middle := img.Box(inner)
	outer := img.Stack(img.Box(middle))
	d, _ := newTestDecoder(t, img, Options{MaxDepth: 2})

	v := d.Decode(boxed, outer)
	opaques := v.Opaques()
	require.Len(t, opaques, 1)
	err := requireOpaque[rverrors.DepthExceededError](t, opaques[0])
	require.Equal(t, 2, err.Depth)
}

func TestCyclicListTerminates(t *testing.T) {
	img := newImage(8)
	b := img.Types
	// struct Node { next: Option<Box<Node>> }
	boxNode := b.Box("Node")
	next := b.OptionPtr(boxNode)
	node := b.Struct("Node", typedesc.Named("next", next))

	// The node lives at self and points at itself.
	const self = stackBase
	catalog, err := b.Catalog()
	require.NoError(t, err)
	mem, err := memory.NewRegions(memory.Region{Addr: self, Data: img.Word(self)})
	require.NoError(t, err)

	d := New(catalog, mem, Options{Logger: zaptest.NewLogger(t)})
	v := d.Decode(node, self)
	opaques := v.Opaques()
	require.Len(t, opaques, 1)
	requireOpaque[rverrors.DepthExceededError](t, opaques[0])
}

func TestFailureContainment(t *testing.T) {
	img := newImage(8)
	b := img.Types
	i32 := b.Primitive(typedesc.I32)
	box := b.Box(i32)
	rec := b.Struct("Record", typedesc.Named("a", i32), typedesc.Named("p", box), typedesc.Named("b", i32))

	buf := img.Zero(rec)
	fixture.Put(buf, 0, 4, 1)
	copy(buf[8:], img.Word(unmapped))
	fixture.Put(buf, 16, 4, 3)
	addr := img.Stack(buf)

	core, logs := observer.New(zapcore.WarnLevel)
	d, recorder := newTestDecoder(t, img, Options{Logger: zap.New(core)})

	// A dangling pointer only hides its own target.
	v := d.Decode(rec, addr)
	a, _ := v.Field("a")
	require.Equal(t, int64(1), a.Scalar)
	p, _ := v.Field("p")
	require.Equal(t, value.KindIndirection, p.Kind)
	readErr := requireOpaque[rverrors.ReadFailureError](t, p.Target)
	require.Equal(t, uint64(unmapped), readErr.Addr)
	bv, _ := v.Field("b")
	require.Equal(t, int64(3), bv.Scalar)
	require.Positive(t, logs.FilterMessage("target memory read failed").Len())

	// When the record's own range cannot be read as a whole, each field is
	// read on its own and only the failing one is lost.
	recorder.FailAt(addr, memory.AccessDenied)
	v = d.Decode(rec, addr)
	a, _ = v.Field("a")
	requireOpaque[rverrors.ReadFailureError](t, a)
	bv, _ = v.Field("b")
	require.Equal(t, int64(3), bv.Scalar)
	require.Len(t, v.Opaques(), 2)
}

func TestEnumPayloadFailureContainment(t *testing.T) {
	for _, word := range []uint64{4, 8} {
		p := fixture.MustBuild(word)
		v, ok := p.Lookup("enum_complex_b")
		require.True(t, ok)
		desc, err := p.Catalog.Resolve(v.Type)
		require.NoError(t, err)
		stringo := desc.Variants[1].Fields[1]
		require.Equal(t, "stringo", stringo.Name)

		rec := memory.NewRecorder(p.Memory)
		rec.FailAt(v.Addr+stringo.Offset+1, memory.AccessDenied)
		d := New(p.Catalog, rec, Options{Logger: zaptest.NewLogger(t)})

		// The tag and the sibling field survive a fault in one payload field.
		got := d.Decode(v.Type, v.Addr)
		require.Equal(t, value.KindVariant, got.Kind)
		require.Equal(t, "B", got.Variant)
		integer, _ := got.Field("integer")
		require.Equal(t, int64(5), integer.Scalar)
		bad, _ := got.Field("stringo")
		requireOpaque[rverrors.ReadFailureError](t, bad)
		require.Len(t, got.Opaques(), 1)

		disc := desc.Discriminant
		require.Contains(t, rec.Requests(), memory.Request{Addr: v.Addr + disc.Offset, Size: disc.Width})
	}
}

func TestEnumUnreadableTag(t *testing.T) {
	p := fixture.MustBuild(8)
	v, ok := p.Lookup("enum_complex_b")
	require.True(t, ok)
	desc, err := p.Catalog.Resolve(v.Type)
	require.NoError(t, err)

	rec := memory.NewRecorder(p.Memory)
	rec.FailAt(v.Addr+desc.Discriminant.Offset, memory.AccessDenied)
	d := New(p.Catalog, rec, Options{Logger: zaptest.NewLogger(t)})

	got := d.Decode(v.Type, v.Addr)
	readErr := requireOpaque[rverrors.ReadFailureError](t, got)
	require.Equal(t, v.Addr+desc.Discriminant.Offset, readErr.Addr)
}

func TestSequenceElementFailureContainment(t *testing.T) {
	p := fixture.MustBuild(8)
	rec := memory.NewRecorder(p.Memory)
	d := New(p.Catalog, rec, Options{Logger: zaptest.NewLogger(t)})

	for _, name := range []string{"vector_ints", "slice_part"} {
		t.Run(name, func(t *testing.T) {
			v, ok := p.Lookup(name)
			require.True(t, ok)
			whole := d.Decode(v.Type, v.Addr)
			require.Len(t, whole.Elems, 3)
			require.Empty(t, whole.Opaques())

			rec.FailAt(whole.Elems[1].Address, memory.AccessDenied)
			got := d.Decode(v.Type, v.Addr)
			require.Equal(t, value.KindSequence, got.Kind)
			require.Len(t, got.Elems, 3)
			require.True(t, value.Equal(whole.Elems[0], got.Elems[0]))
			requireOpaque[rverrors.ReadFailureError](t, got.Elems[1])
			require.True(t, value.Equal(whole.Elems[2], got.Elems[2]))
			require.Len(t, got.Opaques(), 1)
		})
	}
}

func TestErrorCarriesPath(t *testing.T) {
	img := newImage(8)
	b := img.Types
	i32 := b.Primitive(typedesc.I32)
	inner := b.Struct("Inner", typedesc.Named("p", b.Box(i32)))
	outer := b.Struct("Outer", typedesc.Named("x", i32), typedesc.Named("inner", inner))
	buf := img.Zero(outer)
	copy(buf[8:], img.Word(unmapped))
	addr := img.Stack(buf)
	d, _ := newTestDecoder(t, img, Options{})

	v := d.Decode(outer, addr)
	opaques := v.Opaques()
	require.Len(t, opaques, 1)
	ctxErr := requireOpaque[rverrors.ContextualError](t, opaques[0])
	require.Equal(t, "/inner/p/*", ctxErr.Path)
	require.Equal(t, uint64(unmapped), ctxErr.Addr)
	require.Contains(t, ctxErr.Error(), "path /inner/p/*")
}

func TestDanglingFieldType(t *testing.T) {
	img := newImage(8)
	i32 := img.Types.Primitive(typedesc.I32)
	id := img.Types.Add(typedesc.Descriptor{
		Name: "Partial", Kind: typedesc.KindStruct, Size: 8, Align: 4,
		Fields: []typedesc.Field{{Name: "ok", Type: i32}, {Name: "gone", Offset: 4, Type: "Missing"}},
	})
	addr := img.Stack(fixture.Uint(8, 7))
	d, _ := newTestDecoder(t, img, Options{})

	v := d.Decode(id, addr)
	ok, _ := v.Field("ok")
	require.Equal(t, int64(7), ok.Scalar)
	gone, _ := v.Field("gone")
	requireOpaque[rverrors.UnknownTypeError](t, gone)
}

func TestDecodeIsIdempotent(t *testing.T) {
	for _, word := range []uint64{4, 8} {
		p := fixture.MustBuild(word)
		plans, err := cache.NewSharedProvider(cache.DefaultOptions())
		require.NoError(t, err)
		t.Cleanup(func() { cache.Close(plans) })
		d := New(p.Catalog, p.Memory, Options{Plans: plans, Logger: zaptest.NewLogger(t)})

		for _, v := range p.Variables {
			first := d.Decode(v.Type, v.Addr)
			cache.Wait(plans)
			second := d.Decode(v.Type, v.Addr)
			require.True(t, value.Equal(first, second), v.Name)
			require.Empty(t, first.Opaques(), v.Name)
		}
	}
}

func TestPlansAreCached(t *testing.T) {
	img := newImage(8)
	i32 := img.Types.Primitive(typedesc.I32)
	addr := img.Stack(fixture.Uint(4, 1))
	plans, err := cache.NewSharedProvider(cache.DefaultOptions())
	require.NoError(t, err)
	defer cache.Close(plans)
	d, _ := newTestDecoder(t, img, Options{Plans: plans})

	d.Decode(i32, addr)
	cache.Wait(plans)
	c := plans.Acquire()
	defer plans.Release(c)
	cached, ok := c.Get(string(i32))
	require.True(t, ok)
	require.Equal(t, Plan{Strategy: StrategyPrimitive}, cached)
}
