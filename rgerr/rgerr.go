// Package rgerr defines the error taxonomy shared across the render-graph
// runtime's packages, in the sentinel-plus-typed-error style the rest of
// the module's packages are built from.
package rgerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is against these for classification; use the
// typed errors below when the caller needs structured context.
var (
	// ErrInvalidHandle marks a stale generation or kind mismatch — fatal
	// to the caller, surfaced (spec §7).
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrCapacityExceeded marks a transient fixed-size registry, or the
	// queue registry, at capacity — fatal, a programmer bug (spec §7). The
	// upload engine also returns it when a staging ring buffer stays full
	// through its bounded retry loop.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrPersistencyViolation marks a persistent argument buffer
	// referencing a transient resource — fatal, a programmer bug (spec
	// §7).
	ErrPersistencyViolation = errors.New("persistency violation")

	// ErrOffsetWithoutBuffer marks a setBufferOffset with no preceding
	// setBuffer on the same path — recoverable (spec §7).
	ErrOffsetWithoutBuffer = errors.New("offset without buffer")

	// ErrMissingPipelineState marks a resolve attempted with no bound
	// pipeline reflection — fatal at draw/dispatch time (spec §7).
	ErrMissingPipelineState = errors.New("missing pipeline state")

	// ErrUploadFillFailed marks a caller-provided fill closure returning
	// an error — recoverable; propagated to the caller of the upload
	// operation (spec §7).
	ErrUploadFillFailed = errors.New("upload fill failed")
)

// HandleError carries the offending raw handle value alongside
// ErrInvalidHandle.
type HandleError struct {
	Raw     uint64
	Message string
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("handle %#x: %s", e.Raw, e.Message)
}

func (e *HandleError) Unwrap() error { return ErrInvalidHandle }

// NewHandleError constructs a HandleError.
func NewHandleError(raw uint64, message string) *HandleError {
	return &HandleError{Raw: raw, Message: message}
}

// CapacityError carries which registry or pool overflowed.
type CapacityError struct {
	Resource string
	Limit    uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: capacity %d exceeded", e.Resource, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// NewCapacityError constructs a CapacityError.
func NewCapacityError(resource string, limit uint64) *CapacityError {
	return &CapacityError{Resource: resource, Limit: limit}
}

// PersistencyError carries the offending persistent/transient pairing.
type PersistencyError struct {
	Operation string
}

func (e *PersistencyError) Error() string {
	return fmt.Sprintf("%s: persistent resource may not reference a transient child", e.Operation)
}

func (e *PersistencyError) Unwrap() error { return ErrPersistencyViolation }

// NewPersistencyError constructs a PersistencyError.
func NewPersistencyError(operation string) *PersistencyError {
	return &PersistencyError{Operation: operation}
}

// BindingError carries the key/path context for a recoverable
// binding-resolution failure — currently just ErrOffsetWithoutBuffer (spec
// §7). Resolver callers that want to log it have the offending key and
// array index available without parsing the message.
type BindingError struct {
	Key        string
	ArrayIndex int
	Message    string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding %q[%d]: %s", e.Key, e.ArrayIndex, e.Message)
}

func (e *BindingError) Unwrap() error { return ErrOffsetWithoutBuffer }

// NewBindingError constructs a BindingError for the given key/array index.
func NewBindingError(key string, arrayIndex int, message string) *BindingError {
	return &BindingError{Key: key, ArrayIndex: arrayIndex, Message: message}
}

// UploadFillError wraps whatever error a caller's fill closure returned.
type UploadFillError struct {
	Cause error
}

func (e *UploadFillError) Error() string {
	return fmt.Sprintf("upload fill failed: %v", e.Cause)
}

func (e *UploadFillError) Unwrap() error { return errors.Join(ErrUploadFillFailed, e.Cause) }

// NewUploadFillError constructs an UploadFillError.
func NewUploadFillError(cause error) *UploadFillError {
	return &UploadFillError{Cause: cause}
}

// IsInvalidHandle reports whether err is or wraps ErrInvalidHandle.
func IsInvalidHandle(err error) bool { return errors.Is(err, ErrInvalidHandle) }

// IsCapacityExceeded reports whether err is or wraps ErrCapacityExceeded.
func IsCapacityExceeded(err error) bool { return errors.Is(err, ErrCapacityExceeded) }

// IsPersistencyViolation reports whether err is or wraps ErrPersistencyViolation.
func IsPersistencyViolation(err error) bool { return errors.Is(err, ErrPersistencyViolation) }

// IsOffsetWithoutBuffer reports whether err is or wraps ErrOffsetWithoutBuffer.
func IsOffsetWithoutBuffer(err error) bool { return errors.Is(err, ErrOffsetWithoutBuffer) }
