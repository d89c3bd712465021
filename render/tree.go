package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dbgvis/rustval/value"
)

// Node is one row of a variables view.
type Node struct {
	Name     string
	Type     string
	Value    string
	Children []Node
}

// Tree builds the labeled view of v under name. Leaves carry their full
// rendering; composite nodes carry a short summary and expand into children.
func Tree(name string, v *value.Value) Node {
	if v == nil {
		return Node{Name: name, Value: Absent}
	}
	n := Node{Name: name, Type: v.Type}
	switch v.Kind {
	case value.KindAggregate, value.KindVariant:
		n.Value = summary(v)
		for i, f := range v.Fields {
			label := f.Name
			if label == "" {
				label = strconv.Itoa(i)
			}
			n.Children = append(n.Children, Tree(label, f.Value))
		}
	case value.KindSequence:
		n.Value = summary(v)
		for i, e := range v.Elems {
			n.Children = append(n.Children, Tree("["+strconv.Itoa(i)+"]", e))
		}
	case value.KindIndirection:
		if v.Target == nil {
			n.Value = Absent
			break
		}
		target := Tree("*", v.Target)
		n.Value = target.Value
		if v.Counts != nil {
			n.Children = append(n.Children,
				Node{Name: "strong", Type: "usize", Value: strconv.FormatUint(v.Counts.Strong, 10)},
				Node{Name: "weak", Type: "usize", Value: strconv.FormatUint(v.Counts.Weak, 10)})
		}
		n.Children = append(n.Children, target)
	default:
		n.Value = String(v)
	}
	return n
}

func summary(v *value.Value) string {
	if len(v.Fields) == 0 && len(v.Elems) == 0 {
		return String(v)
	}
	switch v.Kind {
	case value.KindVariant:
		return v.Variant
	case value.KindSequence:
		if v.HasCap {
			return fmt.Sprintf("len=%d cap=%d", v.Len, v.Cap)
		}
		return fmt.Sprintf("len=%d", v.Len)
	default:
		if v.Anonymous {
			return "(...)"
		}
		return "{...}"
	}
}

// Write prints the tree with two-space indentation, one node per line.
func (n Node) Write(w io.Writer) error {
	return n.write(w, 0)
}

func (n Node) write(w io.Writer, depth int) error {
	line := strings.Repeat("  ", depth) + n.Name
	if n.Type != "" {
		line += ": " + n.Type
	}
	if _, err := fmt.Fprintf(w, "%s = %s\n", line, n.Value); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.write(w, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Walk visits n and its descendants depth first.
func (n Node) Walk(fn func(depth int, n Node)) {
	n.walk(0, fn)
}

func (n Node) walk(depth int, fn func(int, Node)) {
	fn(depth, n)
	for _, c := range n.Children {
		c.walk(depth+1, fn)
	}
}
