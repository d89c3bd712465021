package rustval

import (
	"errors"

	"github.com/dbgvis/rustval/internal/rverrors"
)

// ErrVariableNotFound is returned for a variable name that was never
// registered.
var ErrVariableNotFound = errors.New("rustval: variable not found")

type (
	// UnknownTypeError is returned when a type id is not in the catalog.
	UnknownTypeError = rverrors.UnknownTypeError
	// ReadFailureError is returned when target memory could not be read.
	ReadFailureError = rverrors.ReadFailureError
	// UnrecognizedEncodingError is returned when enum bytes match no
	// variant.
	UnrecognizedEncodingError = rverrors.UnrecognizedEncodingError
	// MalformedTextError is returned for string bytes that are not UTF-8.
	MalformedTextError = rverrors.MalformedTextError
	// DepthExceededError is returned past the maximum nesting depth.
	DepthExceededError = rverrors.DepthExceededError
	// InvalidDescriptorError is returned for inconsistent descriptors.
	InvalidDescriptorError = rverrors.InvalidDescriptorError
	// ContextualError adds the address and path of the failing node.
	ContextualError = rverrors.ContextualError
)
