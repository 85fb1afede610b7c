package main

import (
	"flag"
	"fmt"

	"github.com/bagbounty/bagbounty/pkg/config"
	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/pipeline"
	"github.com/bagbounty/bagbounty/pkg/ui"
)

func runCheckDeps(args []string) int {
	fs := flag.NewFlagSet("check-deps", flag.ContinueOnError)
	configFile := fs.String("config", "", "YAML tool settings")
	pipelineFile := fs.String("pipeline", "", "YAML pipeline definition replacing the built-in one")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		return exitWithError(config.ErrInvalidConfig, "%v", err)
	}
	applyColor(*noColor)

	settings, err := loadSettings(*configFile)
	if err != nil {
		return exitWithError(err, "%v", err)
	}
	p, err := loadPipeline(*pipelineFile, false, false)
	if err != nil {
		return exitWithError(err, "load pipeline: %v", err)
	}

	engine := pipeline.New(pipeline.Env{}, pipeline.Options{Vars: settings.Vars()})
	ui.PrintSection("Dependencies")
	missing := 0
	for _, ts := range engine.CheckTools(p) {
		if ts.Err != nil {
			missing++
			ui.PrintError(fmt.Sprintf("%-12s %s not found in PATH", ts.Name, ts.Binary))
			continue
		}
		ui.PrintSuccess(fmt.Sprintf("%-12s %s", ts.Name, ts.Path))
	}
	if missing > 0 {
		ui.PrintWarning(fmt.Sprintf("%d tool(s) missing", missing))
		return defaults.ExitToolNotFound
	}
	ui.PrintSuccess("all tools installed")
	return defaults.ExitSuccess
}

// applyColor honours -no-color, otherwise follows the terminal.
func applyColor(noColor bool) {
	if noColor {
		ui.SetNoColor(true)
		return
	}
	ui.AutoColor()
}
