package monitor

import "github.com/jmgilman/go/errors"

var (
	// ErrInvalidArgument is returned when a required argument is missing or malformed.
	ErrInvalidArgument = errors.New(errors.CodeInvalidInput, "invalid argument")
	// ErrInvalidOperation is returned when a caller breaks the monitor protocol. These are programming errors.
	ErrInvalidOperation = errors.New(errors.CodeConflict, "invalid operation")

	// ErrCallbackAlreadyRegistered is returned by NotifyOnChanged once a callback was already registered.
	ErrCallbackAlreadyRegistered = errors.Wrap(ErrInvalidOperation, errors.CodeConflict,
		"change callback already registered")
	// ErrNotInitialized is returned by Dispose when the concrete monitor hasn't completed its initialization.
	ErrNotInitialized = errors.Wrap(ErrInvalidOperation, errors.CodeConflict,
		"monitor initialization is not complete")
)
