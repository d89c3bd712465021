package decoder

import "github.com/dbgvis/rustval/internal/rverrors"

// wrapError wraps an error with the address and the path from the decoded
// root to the failing node. Only allocates when err != nil.
func (*Decoder) wrapError(s *state, err error, addr uint64) error {
	if err == nil {
		return nil
	}
	return rverrors.WrapWithContext(err, addr, s.path)
}
