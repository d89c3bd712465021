package rverrors

import (
	"fmt"
	"strconv"
	"strings"
)

// ContextualError provides detailed error context with address and path
// information. It is only allocated when an error actually occurs.
type ContextualError struct {
	Err  error
	Path string
	Addr uint64
}

func (e ContextualError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("at %#x, path %s: %v", e.Addr, e.Path, e.Err)
	}
	return fmt.Sprintf("at %#x: %v", e.Addr, e.Err)
}

func (e ContextualError) Unwrap() error {
	return e.Err
}

// ErrorContextTracker is an optional interface that can be used to track
// path context for better error messages.
type ErrorContextTracker interface {
	// BuildPath constructs a path string for the current decoder state.
	// This is only called when an error occurs, so allocation is acceptable.
	BuildPath() string
}

// WrapWithContext wraps an error with address and optional path context.
func WrapWithContext(err error, addr uint64, tracker ErrorContextTracker) error {
	if err == nil {
		return nil
	}

	ctxErr := ContextualError{
		Addr: addr,
		Err:  err,
	}

	if tracker != nil {
		ctxErr.Path = tracker.BuildPath()
	}

	return ctxErr
}

// PathBuilder helps build JSON-pointer-like paths efficiently.
// Only used when an error occurs, so allocations are acceptable here.
type PathBuilder struct {
	segments []string
}

// NewPathBuilder creates a new path builder.
func NewPathBuilder() *PathBuilder {
	return &PathBuilder{
		segments: make([]string, 0, 8),
	}
}

// BuildPath implements ErrorContextTracker interface.
func (p *PathBuilder) BuildPath() string {
	return p.Build()
}

// PushField appends a field name to the path.
func (p *PathBuilder) PushField(name string) {
	p.segments = append(p.segments, name)
}

// PushIndex appends a sequence index to the path.
func (p *PathBuilder) PushIndex(index int) {
	p.segments = append(p.segments, strconv.Itoa(index))
}

// Pop removes the last segment.
func (p *PathBuilder) Pop() {
	if len(p.segments) > 0 {
		p.segments = p.segments[:len(p.segments)-1]
	}
}

// Reset clears the path.
func (p *PathBuilder) Reset() {
	p.segments = p.segments[:0]
}

// Build constructs the full path string.
func (p *PathBuilder) Build() string {
	if len(p.segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.segments, "/")
}
