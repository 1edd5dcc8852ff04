package wire

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSealed is returned by a sealed Registry for a type it has not
	// compiled before sealing.
	ErrSealed = errors.New("wire: registry is sealed")

	// ErrTrailingData is returned by Unmarshal when the input holds more
	// bytes than one value.
	ErrTrailingData = errors.New("wire: trailing data after value")

	// ErrTypeMismatch is returned when a value handed to a Codec is not of
	// the codec's type.
	ErrTypeMismatch = errors.New("wire: value type does not match codec")
)

// UnsupportedTypeError means no strategy accepted a type. It is a startup
// configuration error.
type UnsupportedTypeError struct {
	Descriptor Descriptor
	Reason     string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("wire: unsupported type %s", e.Descriptor)
	}
	return fmt.Sprintf("wire: unsupported type %s: %s", e.Descriptor, e.Reason)
}

// CyclicTypeError means compiling a type required compiling itself again.
// Path lists the descriptors from the outermost type to the repeated one.
type CyclicTypeError struct {
	Path []Descriptor
}

func (e *CyclicTypeError) Error() string {
	names := make([]string, len(e.Path))
	for i, d := range e.Path {
		names[i] = d.String()
	}
	return "wire: cyclic type " + strings.Join(names, " -> ")
}

// SequenceTooLongError is returned when a sequence cannot be described by
// the int16 count prefix. Nothing has been written when it is returned.
type SequenceTooLongError struct {
	Len int
}

func (e *SequenceTooLongError) Error() string {
	return fmt.Sprintf("wire: sequence of %d elements exceeds limit of %d", e.Len, MaxSequenceLen)
}
