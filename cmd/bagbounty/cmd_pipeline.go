package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bagbounty/bagbounty/pkg/config"
	"github.com/bagbounty/bagbounty/pkg/pipeline"
)

// loadPipeline returns the built-in pipeline or the one in file, with the
// phases excluded by reconOnly and skipScan removed.
func loadPipeline(file string, reconOnly, skipScan bool) (*pipeline.Pipeline, error) {
	p := pipeline.Builtin()
	if file != "" {
		var err error
		if p, err = pipeline.LoadFile(file); err != nil {
			return nil, err
		}
	}
	if reconOnly {
		p = p.WithoutPhases(pipeline.PhaseFiltering, pipeline.PhaseAnalysis, pipeline.PhaseScanning)
	}
	if skipScan {
		p = p.WithoutPhases(pipeline.PhaseScanning)
	}
	return p, nil
}

// loadSettings reads the YAML tool settings, mapping read failures to a
// configuration error.
func loadSettings(path string) (*config.Settings, error) {
	s, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return s, nil
}

func runPipeline(args []string) int {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	file := fs.String("pipeline", "", "YAML pipeline definition replacing the built-in one")
	reconOnly := fs.Bool("recon-only", false, "Drop filtering, analysis and scanning")
	skipScan := fs.Bool("skip-scan", false, "Drop the scanning phase")
	if err := fs.Parse(args); err != nil {
		return exitWithError(config.ErrInvalidConfig, "%v", err)
	}

	p, err := loadPipeline(*file, *reconOnly, *skipScan)
	if err != nil {
		return exitWithError(err, "load pipeline: %v", err)
	}
	out, err := p.Marshal()
	if err != nil {
		return exitWithError(err, "encode pipeline: %v", err)
	}
	_, _ = os.Stdout.Write(out)
	return 0
}
