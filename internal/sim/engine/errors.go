package engine

import (
	"errors"
	"fmt"

	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/grid"
)

// Error carries a wire error code alongside the underlying cause, so the
// transport can answer a rejected command without string-matching.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the wire code from err, defaulting to E_INTERNAL.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return protocol.ErrInternal
}

func codedErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, grid.ErrOutOfBounds):
		return &Error{Code: protocol.ErrOutOfBounds, Err: err}
	case errors.Is(err, grid.ErrOccupied):
		return &Error{Code: protocol.ErrOccupied, Err: err}
	case errors.Is(err, grid.ErrEmpty):
		return &Error{Code: protocol.ErrEmpty, Err: err}
	default:
		return &Error{Code: protocol.ErrInternal, Err: err}
	}
}
