package mpeg2video

import (
	"errors"
	"fmt"
)

// Sentinel errors callers can branch on with errors.Is.
var (
	ErrFlowDefinition = errors.New("mpeg2video: input flow definition does not match block.mpeg2video.")
	ErrAllocation     = errors.New("mpeg2video: buffer or dictionary allocation failed")
)

// StructuralError wraps a bitstream parsing failure with the stage of the
// framer that produced it (e.g. "sequence extension", "aspect ratio").
type StructuralError struct {
	Stage string
	Err   error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("mpeg2video: %s: %v", e.Stage, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

func structuralf(stage, format string, args ...any) error {
	return &StructuralError{Stage: stage, Err: fmt.Errorf(format, args...)}
}
