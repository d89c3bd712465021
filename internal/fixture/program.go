package fixture

import (
	"math"

	"github.com/dbgvis/rustval/memory"
	"github.com/dbgvis/rustval/typedesc"
)

// Variable is a named local of the sample program together with its
// expected rendering.
type Variable struct {
	Name string
	Type typedesc.TypeID
	Addr uint64
	Want string
}

// Program is the frozen image of the sample program stopped at its last
// statement.
type Program struct {
	WordSize  uint64
	Catalog   *typedesc.Catalog
	Memory    *memory.Regions
	Variables []Variable
}

// Lookup returns the variable named name.
func (p *Program) Lookup(name string) (Variable, bool) {
	for _, v := range p.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Bases returns the stack and heap base addresses used for a word size.
func Bases(word uint64) (stack, heap uint64) {
	if word == 4 {
		return 0xbf80_0000, 0x0805_0000
	}
	return 0x7ffc_1000_0000, 0x5555_5600_0000
}

type program struct {
	*Image
	vars []Variable
}

func (p *program) local(name string, id typedesc.TypeID, data []byte, want string) {
	addr := p.Stack(data)
	p.vars = append(p.vars, Variable{Name: name, Type: id, Addr: addr, Want: want})
}

// Build lays out every local of the sample program for a 4- or 8-byte
// target.
func Build(word uint64) (*Program, error) {
	stack, heap := Bases(word)
	p := &program{Image: NewImage(word, stack, heap)}
	b := p.Types

	unit := b.Primitive(typedesc.Unit)
	u8 := b.Primitive(typedesc.U8)
	u16 := b.Primitive(typedesc.U16)
	u32 := b.Primitive(typedesc.U32)
	u64 := b.Primitive(typedesc.U64)
	i8 := b.Primitive(typedesc.I8)
	i16 := b.Primitive(typedesc.I16)
	i32 := b.Primitive(typedesc.I32)
	i64 := b.Primitive(typedesc.I64)
	f64 := b.Primitive(typedesc.F64)
	str := b.Str()
	owned := b.OwnedString()
	w := word

	p.local("nothing", unit, nil, "()")
	p.local("uint1", u8, Uint(1, 1), "1")
	p.local("uint2", u16, Uint(2, 2), "2")
	p.local("uint3", u32, Uint(4, 3), "3")
	p.local("uint4", u64, Uint(8, 4), "4")
	p.local("int1", i8, Uint(1, 1), "1")
	p.local("int2", i16, Uint(2, 2), "2")
	p.local("int3", i32, Uint(4, 3), "3")
	p.local("int4", i64, Uint(8, 4), "4")
	p.local("float", f64, Uint(8, math.Float64bits(5.5)), "5.5")

	p.local("str1", str, p.StrRef("sample text with spaces!"), `"sample text with spaces!"`)
	p.local("str2", owned, p.OwnedString("lazy brown fox", 2), `"lazy brown fox"`)
	byteString := b.Ref(b.Array(u8, 7))
	p.local("str_binary", byteString, p.Word(p.Heap([]byte("achtung"))), "[97, 99, 104, 116, 117, 110, 103]")

	option := b.Option(i32)
	some := p.Zero(option)
	Put(some, 0, 1, 1)
	Put(some, 4, 4, 1)
	p.local("option_some", option, some, "Some(1)")
	p.local("option_none", option, p.Zero(option), "None")

	// Result<i32, &str> stores Ok in the null niche of the &str pointer and
	// keeps the i32 payload past the niche field.
	result := b.Add(typedesc.Descriptor{
		Name: "Result<i32, &str>", Kind: typedesc.KindEnum, Size: 2 * w, Align: w,
		Variants: []typedesc.Variant{
			{Name: "Ok", Fields: []typedesc.Field{{Offset: w, Type: i32}}},
			{Name: "Err", Fields: []typedesc.Field{{Offset: 0, Type: str}}},
		},
		Discriminant: typedesc.Discriminant{
			Kind: typedesc.Niche, Offset: 0, Width: w,
			ValidStart: 1, ValidEnd: maxWord(w),
			DataVariant: 1, NicheStart: 0, NicheVariants: []int{0},
		},
	})
	ok := p.Zero(result)
	Put(ok, w, 4, 8)
	p.local("result_value", result, ok, "Ok(8)")
	p.local("result_error", result, p.StrRef("Errawr"), `Err("Errawr")`)

	p.local("slice_empty", b.Array(i32, 0), nil, "[]")
	repeated := make([]byte, 0, 40)
	for range 10 {
		repeated = append(repeated, Uint(4, 5)...)
	}
	p.local("slice_repeated", b.Array(i32, 10), repeated, "[5, 5, 5, 5, 5, 5, 5, 5, 5, 5]")
	var strs []byte
	for _, s := range []string{"a", "b", "c", "d"} {
		strs = append(strs, p.StrRef(s)...)
	}
	arrStr := b.Array(str, 4)
	p.local("slice_with_strings", arrStr, strs, `["a", "b", "c", "d"]`)
	withStrings := p.vars[len(p.vars)-1].Addr
	p.local("slice_part", b.SliceRef(str), p.Words(withStrings, 3), `["a", "b", "c"]`)

	tuple := b.Tuple(i32, str, i32)
	tup := p.Zero(tuple)
	Put(tup, 0, 4, 42)
	copy(tup[w:], p.StrRef("zelda"))
	Put(tup, 3*w, 4, 7)
	p.local("tuple", tuple, tup, `(42, "zelda", 7)`)

	boxI32 := b.Box(i32)
	saver := b.NicheEnum("SpaceSaver",
		typedesc.V("Thebox", typedesc.Pos(u8), typedesc.Pos(boxI32)), 1,
		1, maxWord(w), 0, "Nothing")
	p.local("space_saver_nothing", saver, p.Zero(saver), "Nothing")
	box := p.Zero(saver)
	Put(box, 0, 1, 17)
	copy(box[w:], p.Box(Uint(4, 1729)))
	p.local("space_saver_box", saver, box, "Thebox(17, 1729)")

	p.local("vector_ints", b.Vec(i32), p.Vec(Uint(4, 1), Uint(4, 2), Uint(4, 3)), "[1, 2, 3]")
	p.local("vector_strings", b.Vec(str), p.Vec(p.StrRef("a"), p.StrRef("b"), p.StrRef("c")), `["a", "b", "c"]`)

	simple := b.ExplicitEnum("SimpleEnum", 4, typedesc.V("A"), typedesc.V("B", typedesc.Pos(i32)))
	p.local("enum_simple_empty", simple, p.Zero(simple), "A")
	filled := p.Zero(simple)
	Put(filled, 0, 4, 1)
	Put(filled, 4, 4, 5)
	p.local("enum_simple_filled", simple, filled, "B(5)")

	genericI64 := b.Struct("GenericStructure<i64>", typedesc.Pos(i64))
	complexEnum := b.ExplicitEnum("ComplexEnum", 4,
		typedesc.V("A", typedesc.Pos(genericI64)),
		typedesc.V("B", typedesc.Named("integer", i32), typedesc.Named("stringo", owned)))
	desc, _ := b.Get(complexEnum)
	ca := p.Zero(complexEnum)
	Put(ca, desc.Variants[0].Fields[0].Offset, 8, 5)
	p.local("enum_complex_a", complexEnum, ca, "A(GenericStructure<i64>(5))")
	cb := p.Zero(complexEnum)
	Put(cb, 0, 4, 1)
	Put(cb, desc.Variants[1].Fields[0].Offset, 4, 5)
	copy(cb[desc.Variants[1].Fields[1].Offset:], p.OwnedString("stringo", 0))
	p.local("enum_complex_b", complexEnum, cb, `B { integer: 5, stringo: "stringo" }`)

	p.local("structure_empty_structure", b.Struct("EmptyStructure"), nil, "EmptyStructure")
	auto := b.Struct("AutoStructure", typedesc.Pos(i32), typedesc.Pos(u64))
	ad, _ := b.Get(auto)
	as := p.Zero(auto)
	Put(as, 0, 4, 9)
	Put(as, ad.Fields[1].Offset, 8, 17)
	p.local("structure_auto", auto, as, "AutoStructure(9, 17)")
	usual := b.Struct("UsualStructure", typedesc.Named("integer", i32), typedesc.Named("stringo", owned))
	ud, _ := b.Get(usual)
	us := p.Zero(usual)
	Put(us, 0, 4, 5)
	copy(us[ud.Fields[1].Offset:], p.OwnedString("well", 0))
	p.local("structure_usual", usual, us, `UsualStructure { integer: 5, stringo: "well" }`)
	p.local("structure_generic", b.Struct("GenericStructure<i16>", typedesc.Pos(i16)), Uint(2, 4), "GenericStructure<i16>(4)")
	p.local("method_generic_result", i32, Uint(4, 5), "5")

	p.local("box_int", boxI32, p.Box(Uint(4, 4)), "4")
	p.local("cell_int", b.Cell(i32), Uint(4, 5), "5")
	refCell := b.RefCell(i32)
	rd, _ := b.Get(refCell)
	rc := p.Zero(refCell)
	Put(rc, rd.Fields[0].Offset, 4, 6)
	p.local("cell_ref_int", refCell, rc, "6")
	rcI32 := b.Rc(i32)
	rcd, _ := b.Get(rcI32)
	p.local("rc", rcI32, p.Shared(1, 1, rcd.Shared.PayloadOffset, Uint(4, 5)), "5")
	arcI32 := b.Arc(i32)
	arcd, _ := b.Get(arcI32)
	p.local("arc", arcI32, p.Shared(1, 1, arcd.Shared.PayloadOffset, Uint(4, 7)), "7")

	p.local("arg", owned, p.OwnedString("test", 0), `"test"`)

	catalog, err := b.Catalog()
	if err != nil {
		return nil, err
	}
	return &Program{WordSize: word, Catalog: catalog, Memory: p.Mem, Variables: p.vars}, nil
}

// MustBuild is Build for tests.
func MustBuild(word uint64) *Program {
	p, err := Build(word)
	if err != nil {
		panic(err)
	}
	return p
}

func maxWord(w uint64) uint64 {
	if w >= 8 {
		return math.MaxUint64
	}
	return uint64(1)<<(8*w) - 1
}
