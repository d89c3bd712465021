package render

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dbgvis/rustval/value"
)

// Entry is a named value in a golden listing.
type Entry struct {
	Name  string
	Value *value.Value
}

// Listing renders entries as "name = value" lines in the given order.
func Listing(entries []Entry, opts Options) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Name)
		sb.WriteString(" = ")
		sb.WriteString(StringWithOptions(e.Value, opts))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Diff returns a unified diff from want to got, or "" when they match.
func Diff(want, got string) (string, error) {
	if want == got {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(want),
		B:        splitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
}

// splitLines splits s after each newline. Unlike difflib.SplitLines it does
// not turn the empty tail after a final newline into a line of its own.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}
