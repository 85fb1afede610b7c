package reaper

import "errors"

var (
	// ErrUnsupported is returned on platforms without a readable process table.
	ErrUnsupported = errors.New("reaper: process table not supported on this platform")

	// ErrNoSuchProcess is returned by KillTree when the root pid is not running.
	ErrNoSuchProcess = errors.New("reaper: no such process")

	// ErrUnknownBinary is returned when a signature names a binary that is not
	// a configured pipeline tool.
	ErrUnknownBinary = errors.New("reaper: signature binary is not a configured tool")

	// ErrEmptySignature is returned for a signature without a binary.
	ErrEmptySignature = errors.New("reaper: signature has no binary")
)
