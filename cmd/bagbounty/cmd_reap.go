package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bagbounty/bagbounty/pkg/cli"
	"github.com/bagbounty/bagbounty/pkg/config"
	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/bagbounty/bagbounty/pkg/pipeline"
	"github.com/bagbounty/bagbounty/pkg/reaper"
	"github.com/bagbounty/bagbounty/pkg/supervision"
	"github.com/bagbounty/bagbounty/pkg/ui"
)

func runReap(args []string) int {
	opts, err := config.ParseReap(args)
	if err != nil {
		return exitWithError(err, "%v", err)
	}
	applyColor(opts.NoColor)

	settings, err := loadSettings(opts.ConfigFile)
	if err != nil {
		return exitWithError(err, "%v", err)
	}

	var matcher reaper.Matcher
	mode := "signatures"
	if len(opts.Keywords) > 0 {
		matcher = reaper.Keywords(opts.Keywords)
		mode = "keywords"
	} else {
		sigs := settings.ReapSignatures()
		if err := reaper.ValidateSignatures(sigs, settings.Binaries()); err != nil {
			return exitWithError(config.ErrInvalidConfig, "%v", err)
		}
		matcher = sigs
	}

	log, err := supervision.New(supervision.Options{Level: slog.LevelInfo, Console: os.Stderr})
	if err != nil {
		return exitWithError(err, "%v", err)
	}
	defer log.Close()

	ctx, cancel := cli.SignalContext(duration.SignalGrace)
	defer cancel()

	rp := reaper.New(reaper.Options{Grace: opts.Grace, Logger: log.Logger()})
	engine := pipeline.New(pipeline.Env{Log: log, Reaper: rp}, pipeline.Options{})

	ui.PrintSection("Reap")
	ui.PrintConfigLine("Mode", mode)
	ui.PrintConfigLine("Grace", opts.Grace.String())
	if opts.DryRun {
		ui.PrintConfigLine("Dry run", "yes")
	}

	rep, err := engine.Reap(ctx, matcher, opts.DryRun)
	if err != nil {
		return exitWithError(err, "reap: %v", err)
	}

	for _, t := range rep.Trees {
		line := fmt.Sprintf("pid %d %s (%d process(es))", t.Root.PID, truncate(t.Root.CommandLine(), 80), t.Size())
		if opts.DryRun {
			ui.PrintInfo(line + ", kill order " + killOrder(t))
		} else {
			ui.PrintSuccess(line)
		}
	}
	switch {
	case rep.Found == 0:
		ui.PrintInfo("no matching processes")
	case opts.DryRun:
		ui.PrintInfo(fmt.Sprintf("%d process(es) would be terminated", rep.Found))
	case rep.Remaining > 0:
		ui.PrintWarning(fmt.Sprintf("killed %d, %d still running", rep.Killed, rep.Remaining))
		return defaults.ExitPipelineFailed
	default:
		ui.PrintSuccess(fmt.Sprintf("killed %d process(es)", rep.Killed))
	}
	return defaults.ExitSuccess
}

// killOrder renders the tree's pids leaves first, root last.
func killOrder(t reaper.Tree) string {
	pids := t.PIDs()
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(pid)
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
