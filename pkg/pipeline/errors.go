package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoFrame is returned by OutputQueue.Get for an empty frame.
	ErrNoFrame = errors.New("pipeline: no frame")

	// ErrStopped is returned once the pipeline is no longer running.
	ErrStopped = errors.New("pipeline: stopped")

	// ErrNotConfigured is returned by Start before Configure.
	ErrNotConfigured = errors.New("pipeline: not configured")

	// ErrAlreadyRunning is returned by Configure or Start on a running pipeline.
	ErrAlreadyRunning = errors.New("pipeline: already running")

	// ErrUnknownBackend is returned by Open for an unregistered name.
	ErrUnknownBackend = errors.New("pipeline: unknown backend")

	// ErrUnsupported is returned for controls a backend cannot apply.
	ErrUnsupported = errors.New("pipeline: unsupported")
)

// BackendError wraps an error with backend and operation context.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("pipeline [%s]: %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}
