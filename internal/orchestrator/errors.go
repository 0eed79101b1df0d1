package orchestrator

import "errors"

var (
	// ErrUnknownRunType is returned when a start names an unregistered run type.
	ErrUnknownRunType = errors.New("unknown run type")

	// ErrNotFound is returned for operations on a run id the engine does not hold.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidTransition is returned when an operation is not allowed in the
	// run's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidMode is returned when a start names a mode other than full or dry.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("orchestrator closed")
)
