package rustval

import (
	"github.com/dbgvis/rustval/render"
	"github.com/dbgvis/rustval/typedesc"
	"github.com/dbgvis/rustval/value"
)

// Result holds the decoded value of one variable.
type Result struct {
	Name string
	Type typedesc.TypeID
	Addr uint64

	value *value.Value
	err   error
}

// Err returns the lookup error, if any. Decode problems inside the value
// are not errors; they appear as Opaque nodes.
func (r Result) Err() error {
	return r.err
}

// Found reports whether the variable was known.
func (r Result) Found() bool {
	return r.err == nil && r.value != nil
}

// Value returns the decoded tree, or nil when the variable was not found.
func (r Result) Value() *value.Value {
	return r.value
}

// Complete reports whether the tree decoded without any Opaque node.
func (r Result) Complete() bool {
	return r.value != nil && len(r.value.Opaques()) == 0
}

// String renders the value on one line.
func (r Result) String() string {
	if r.err != nil {
		return "<" + r.err.Error() + ">"
	}
	return render.String(r.value)
}
