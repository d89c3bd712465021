// Package render formats decoded value trees for people: a compact one-line
// form, a labeled tree for variable views and unified diffs for golden
// comparisons.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dbgvis/rustval/value"
)

// Absent is printed for a null indirection.
const Absent = "<absent>"

// Options tune String output.
type Options struct {
	// ShowCounts appends lengths, capacities and reference counts.
	ShowCounts bool
	// ShowTypes suffixes numeric literals with their type, Rust style.
	ShowTypes bool
}

// String renders v on one line, the way the Rust source would spell it.
func String(v *value.Value) string {
	return StringWithOptions(v, Options{})
}

// StringWithOptions renders v on one line using opts.
func StringWithOptions(v *value.Value, opts Options) string {
	var sb strings.Builder
	write(&sb, v, opts)
	return sb.String()
}

func write(sb *strings.Builder, v *value.Value, opts Options) {
	if v == nil {
		sb.WriteString(Absent)
		return
	}
	switch v.Kind {
	case value.KindScalar:
		writeScalar(sb, v, opts)
	case value.KindAggregate:
		name := v.Type
		if v.Anonymous {
			name = ""
		}
		writeFields(sb, name, v, opts)
	case value.KindVariant:
		writeFields(sb, v.Variant, v, opts)
	case value.KindSequence:
		writeSequence(sb, v, opts)
	case value.KindIndirection:
		if v.Target == nil {
			sb.WriteString(Absent)
			return
		}
		write(sb, v.Target, opts)
		if opts.ShowCounts && v.Counts != nil {
			fmt.Fprintf(sb, " (strong %d, weak %d)", v.Counts.Strong, v.Counts.Weak)
		}
	default:
		writeOpaque(sb, v)
	}
}

func writeScalar(sb *strings.Builder, v *value.Value, opts Options) {
	suffix := ""
	if opts.ShowTypes {
		suffix = v.Type
	}
	switch s := v.Scalar.(type) {
	case value.UnitValue:
		sb.WriteString("()")
	case bool:
		sb.WriteString(strconv.FormatBool(s))
	case rune:
		sb.WriteString(strconv.QuoteRune(s))
	case string:
		sb.WriteString(strconv.Quote(s))
		if v.Truncated {
			sb.WriteString("...")
		}
		if opts.ShowCounts {
			writeCounts(sb, v)
		}
	case int64:
		sb.WriteString(strconv.FormatInt(s, 10))
		sb.WriteString(suffix)
	case uint64:
		sb.WriteString(strconv.FormatUint(s, 10))
		sb.WriteString(suffix)
	case float32:
		sb.WriteString(formatFloat(float64(s), 32))
		sb.WriteString(suffix)
	case float64:
		sb.WriteString(formatFloat(s, 64))
		sb.WriteString(suffix)
	default:
		fmt.Fprintf(sb, "%v", s)
	}
}

// formatFloat spells f the way Rust's Debug does: "1.0", "1e21", "1.5e-7",
// "inf", "NaN".
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, bitSize), "e")
		n, _ := strconv.Atoi(exp)
		return mantissa + "e" + strconv.Itoa(n)
	}
	out := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

func writeFields(sb *strings.Builder, name string, v *value.Value, opts Options) {
	sb.WriteString(name)
	switch {
	case len(v.Fields) == 0:
		if name == "" {
			sb.WriteString("()")
		}
	case v.Positional:
		sb.WriteByte('(')
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			write(sb, f.Value, opts)
		}
		sb.WriteByte(')')
	default:
		sb.WriteString(" { ")
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			write(sb, f.Value, opts)
		}
		sb.WriteString(" }")
	}
}

func writeSequence(sb *strings.Builder, v *value.Value, opts Options) {
	sb.WriteByte('[')
	for i, e := range v.Elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		write(sb, e, opts)
	}
	if v.Truncated {
		sb.WriteString(", ...")
	}
	sb.WriteByte(']')
	if opts.ShowCounts {
		writeCounts(sb, v)
	}
}

func writeCounts(sb *strings.Builder, v *value.Value) {
	if v.HasCap {
		fmt.Fprintf(sb, " (len %d, cap %d)", v.Len, v.Cap)
		return
	}
	fmt.Fprintf(sb, " (len %d)", v.Len)
}

func writeOpaque(sb *strings.Builder, v *value.Value) {
	sb.WriteString("<error: ")
	if v.Err != nil {
		sb.WriteString(v.Err.Error())
	} else {
		sb.WriteString("could not identify value")
	}
	if len(v.Raw) > 0 {
		fmt.Fprintf(sb, "; raw % x", v.Raw)
	}
	sb.WriteByte('>')
}
