package supervision

import "errors"

var (
	// ErrUnknownLevel is returned by ParseLevel for unrecognised names.
	ErrUnknownLevel = errors.New("supervision: unknown log level")

	// ErrClosed is returned when writing to a closed log file.
	ErrClosed = errors.New("supervision: log closed")
)
