package pipeline

import "errors"

var (
	// ErrInvalidPipeline means a pipeline definition failed validation.
	ErrInvalidPipeline = errors.New("pipeline: invalid definition")

	// ErrInvalidTarget means the target is not a plain domain name.
	ErrInvalidTarget = errors.New("pipeline: invalid target")

	// ErrUnresolvedVariable means a command still holds a {{placeholder}}
	// after expansion.
	ErrUnresolvedVariable = errors.New("pipeline: unresolved variable")
)
