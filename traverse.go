package rustval

import "iter"

// Locals yields the decoded value of every registered variable in
// registration order. Each value is decoded when it is reached, so
// stopping early skips the remaining reads.
func (i *Inspector) Locals() iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for _, v := range i.vars {
			if !yield(i.decodeVariable(v)) {
				return
			}
		}
	}
}
