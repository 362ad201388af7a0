package disk

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateID       = errors.New("duplicate partition id")
	ErrInvalidID         = errors.New("partition id out of range")
	ErrInvalidType       = errors.New("partition type not set")
	ErrMultipleRemaining = errors.New("more than one remaining-space partition")
	ErrInsufficientSpace = errors.New("insufficient space for remaining-space partition")
	ErrLayoutTooLarge    = errors.New("layout does not fit on device")
	ErrOverflow          = errors.New("sector arithmetic overflow")
)

// LayoutError is returned when a partition layout cannot be planned. Kind
// is one of the Err* sentinels above and can be tested with errors.Is.
type LayoutError struct {
	Kind   error
	ID     int
	Detail string
}

func (e *LayoutError) Error() string {
	msg := fmt.Sprintf("cannot plan partition %d: %s", e.ID, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *LayoutError) Unwrap() error {
	return e.Kind
}

func layoutErrorf(kind error, id int, format string, a ...any) *LayoutError {
	return &LayoutError{
		Kind:   kind,
		ID:     id,
		Detail: fmt.Sprintf(format, a...),
	}
}
