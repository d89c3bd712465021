// Package rverrors defines the error taxonomy shared by the decoder and the
// public packages.
package rverrors

import (
	"fmt"
)

// UnknownTypeError is returned when a type id is not present in the catalog.
type UnknownTypeError struct {
	ID string
}

func NewUnknownTypeError(id string) UnknownTypeError {
	return UnknownTypeError{ID: id}
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("rustval: unknown type %q", e.ID)
}

// ReadFailureError is returned when target memory could not be read. It
// only ever affects the subtree whose bytes were requested.
type ReadFailureError struct {
	Err  error
	Addr uint64
	Size uint64
}

func NewReadFailureError(addr, size uint64, err error) ReadFailureError {
	return ReadFailureError{Addr: addr, Size: size, Err: err}
}

func (e ReadFailureError) Error() string {
	return fmt.Sprintf("rustval: cannot read %d bytes at %#x: %v", e.Size, e.Addr, e.Err)
}

func (e ReadFailureError) Unwrap() error {
	return e.Err
}

// UnrecognizedEncodingError is returned when the discriminant bytes of an
// enum match none of its declared variants.
type UnrecognizedEncodingError struct {
	Type  string
	Value uint64
}

func NewUnrecognizedEncodingError(typeName string, v uint64) UnrecognizedEncodingError {
	return UnrecognizedEncodingError{Type: typeName, Value: v}
}

func (e UnrecognizedEncodingError) Error() string {
	return fmt.Sprintf("rustval: discriminant %#x matches no variant of %s", e.Value, e.Type)
}

// MalformedTextError reports string bytes that are not valid UTF-8. The raw
// bytes are kept so they can still be shown.
type MalformedTextError struct {
	Raw []byte
}

func NewMalformedTextError(raw []byte) MalformedTextError {
	return MalformedTextError{Raw: raw}
}

func (e MalformedTextError) Error() string {
	return fmt.Sprintf("rustval: invalid UTF-8 in %d string bytes", len(e.Raw))
}

// RawBytes returns the undecodable bytes.
func (e MalformedTextError) RawBytes() []byte {
	return e.Raw
}

// DepthExceededError is returned instead of descending past the configured
// maximum nesting depth.
type DepthExceededError struct {
	Depth int
}

func NewDepthExceededError(depth int) DepthExceededError {
	return DepthExceededError{Depth: depth}
}

func (e DepthExceededError) Error() string {
	return fmt.Sprintf("rustval: depth exceeded (max %d)", e.Depth)
}

// InvalidDescriptorError is returned when a type descriptor is internally
// inconsistent or cannot be classified.
type InvalidDescriptorError struct {
	message string
}

func NewInvalidDescriptorError(format string, args ...any) InvalidDescriptorError {
	return InvalidDescriptorError{fmt.Sprintf(format, args...)}
}

func (e InvalidDescriptorError) Error() string {
	return e.message
}
