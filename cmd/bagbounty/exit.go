package main

import (
	"errors"
	"fmt"

	"github.com/bagbounty/bagbounty/pkg/config"
	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/pipeline"
	"github.com/bagbounty/bagbounty/pkg/stage"
	"github.com/bagbounty/bagbounty/pkg/ui"
)

// exitCode maps an error to the CLI exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return defaults.ExitSuccess
	case errors.Is(err, stage.ErrToolNotFound):
		return defaults.ExitToolNotFound
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrMissingRequired),
		errors.Is(err, pipeline.ErrInvalidPipeline),
		errors.Is(err, pipeline.ErrInvalidTarget),
		errors.Is(err, pipeline.ErrUnresolvedVariable):
		return defaults.ExitUserError
	default:
		return defaults.ExitInternalError
	}
}

// exitWithError prints a formatted error message and returns the exit
// code err maps to.
func exitWithError(err error, format string, args ...any) int {
	ui.PrintError(fmt.Sprintf(format, args...))
	return exitCode(err)
}

// resultCode maps a finished run to the CLI exit code.
func resultCode(res *pipeline.Result) int {
	switch {
	case res.Interrupted:
		return defaults.ExitInterrupted
	case !res.Succeeded:
		return defaults.ExitPipelineFailed
	default:
		return defaults.ExitSuccess
	}
}
