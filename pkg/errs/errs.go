// Package errs defines the error taxonomy shared by the projector packages.
//
// Every failure is reported as an *Error carrying the operation that failed and
// one of the sentinel kinds below, so callers can branch with errors.Is:
//
//	if errors.Is(err, errs.ErrOutOfMemory) {
//		mgr.Trim()
//	}
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Match them with errors.Is.
var (
	// ErrConfiguration reports an invalid or inconsistent geometry or engine setting.
	ErrConfiguration = errors.New("tomoproj: configuration error")

	// ErrSizeMismatch reports a host/device element count disagreement.
	ErrSizeMismatch = errors.New("tomoproj: size mismatch")

	// ErrOutOfMemory reports that a device allocation exceeded the capacity budget.
	ErrOutOfMemory = errors.New("tomoproj: out of device memory")

	// ErrGeometryMismatch reports a buffer whose shape disagrees with the geometry.
	ErrGeometryMismatch = errors.New("tomoproj: geometry mismatch")

	// ErrDeviceExecution reports a fault raised while a kernel was running.
	ErrDeviceExecution = errors.New("tomoproj: device execution error")

	// ErrInvalidHandle reports use of a released or unknown buffer handle.
	ErrInvalidHandle = errors.New("tomoproj: invalid buffer handle")
)

// Error is a structured error with the failing operation and its kind.
type Error struct {
	Op   string // Operation that failed
	Kind error  // One of the sentinel kinds
	Msg  string // Human-readable detail
	Err  error  // Underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	kind := "error"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s in %s: %s (caused by: %v)", kind, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s in %s: %s", kind, e.Op, e.Msg)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New builds an *Error of the given kind with a formatted message.
func New(op string, kind error, format string, args ...any) error {
	return &Error{
		Op:   op,
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(op string, kind error, err error, format string, args ...any) error {
	return &Error{
		Op:   op,
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// Configuration is shorthand for New(op, ErrConfiguration, ...).
func Configuration(op, format string, args ...any) error {
	return New(op, ErrConfiguration, format, args...)
}

// GeometryMismatch is shorthand for New(op, ErrGeometryMismatch, ...).
func GeometryMismatch(op, format string, args ...any) error {
	return New(op, ErrGeometryMismatch, format, args...)
}

// KindOf returns the sentinel kind of err, or nil if err is not from this taxonomy.
func KindOf(err error) error {
	for _, k := range []error{
		ErrConfiguration,
		ErrSizeMismatch,
		ErrOutOfMemory,
		ErrGeometryMismatch,
		ErrDeviceExecution,
		ErrInvalidHandle,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
