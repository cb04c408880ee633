// ABOUTME: Error taxonomy shared by every layer
// ABOUTME: NotFound, Format, Backend and State errors with matching sentinels
package audio

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("device not found")
	ErrFormat   = errors.New("invalid format")
	ErrBackend  = errors.New("backend failure")
	ErrState    = errors.New("invalid stream state")
)

// NotFoundError reports a failed device resolution
type NotFoundError struct {
	Identifier any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no soundcard with id %v", e.Identifier)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FormatError reports an invalid sample format, channel count or channel map
type FormatError struct {
	Reason string
}

// NewFormatError creates a FormatError
func NewFormatError(reason string) *FormatError {
	return &FormatError{Reason: reason}
}

func (e *FormatError) Error() string {
	return "invalid format: " + e.Reason
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// BackendError wraps a failure status returned by a native backend
type BackendError struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, msg)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func (e *BackendError) Unwrap() error { return e.Err }

// StateError reports an operation attempted in the wrong stream state
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: stream is %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrState }
