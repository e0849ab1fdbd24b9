package codegen

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrEmitterNotFound       = errors.New("no emitter registered for opcode")
	ErrMissingAllocation     = errors.New("output connector has no allocation")
	ErrConstantOverlap       = errors.New("constant ranges overlap")
	ErrConstantOutOfBounds   = errors.New("constant data exceeds its allocation")
	ErrConstantSpace         = errors.New("constant allocated outside the const pool")
	ErrShapeRank             = errors.New("tensor rank exceeds runtime shape record")
	ErrUnsupportedMultiplier = errors.New("quantize scale out of fixed-point range")
)

// CapacityError reports that the planned page count exceeds the compiled-in
// ceiling. It is a build-time failure: the model must be restructured or the
// page budget raised, not retried.
type CapacityError struct {
	Pages    int
	MaxPages int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("model needs %d memory pages, limit is %d", e.Pages, e.MaxPages)
}
