package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bagbounty/bagbounty/pkg/checkpoint"
	"github.com/bagbounty/bagbounty/pkg/cli"
	"github.com/bagbounty/bagbounty/pkg/config"
	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/bagbounty/bagbounty/pkg/jsonutil"
	"github.com/bagbounty/bagbounty/pkg/metrics"
	"github.com/bagbounty/bagbounty/pkg/pipeline"
	"github.com/bagbounty/bagbounty/pkg/reaper"
	"github.com/bagbounty/bagbounty/pkg/report"
	"github.com/bagbounty/bagbounty/pkg/stage"
	"github.com/bagbounty/bagbounty/pkg/supervision"
	"github.com/bagbounty/bagbounty/pkg/telemetry"
	"github.com/bagbounty/bagbounty/pkg/timetracker"
	"github.com/bagbounty/bagbounty/pkg/ui"
)

// runOutput is the -json document.
type runOutput struct {
	Result  *pipeline.Result `json:"result"`
	Report  string           `json:"report,omitempty"`
	Timings []timingOutput   `json:"timings"`
	Hanging []hangingOutput  `json:"hanging,omitempty"`
}

type timingOutput struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}

type hangingOutput struct {
	Stage   string  `json:"stage"`
	PID     int     `json:"pid"`
	Command string  `json:"command"`
	Seconds float64 `json:"elapsed_seconds"`
}

func runRun(args []string) int {
	opts, err := config.ParseRun(args)
	if err != nil {
		ui.PrintHelp("  Usage: bagbounty run <domain> [flags]")
		return exitWithError(err, "%v", err)
	}
	applyColor(opts.NoColor)
	if opts.JSON {
		ui.SetSilent(true)
	}

	settings, err := loadSettings(opts.ConfigFile)
	if err != nil {
		return exitWithError(err, "%v", err)
	}
	p, err := loadPipeline(opts.PipelineFile, opts.ReconOnly, opts.SkipScan)
	if err != nil {
		return exitWithError(err, "load pipeline: %v", err)
	}

	ws := filepath.Join(opts.WorkDir, "recon-"+opts.Domain)
	logFile := opts.LogFile
	if logFile == "" {
		logFile = filepath.Join(ws, "logs", defaults.LogFileName)
	}
	level, _ := supervision.ParseLevel(opts.LogLevel)
	log, err := supervision.New(supervision.Options{
		Level:    level,
		Console:  os.Stderr,
		FilePath: logFile,
	})
	if err != nil {
		return exitWithError(err, "%v", err)
	}
	defer log.Close()

	ui.PrintBanner()
	log.LogSystemInfo()

	collector, err := metrics.New(func() float64 { return float64(len(log.InFlight())) })
	if err != nil {
		return exitWithError(err, "metrics: %v", err)
	}
	if opts.MetricsAddr != "" {
		if err := collector.Serve(opts.MetricsAddr, log.Logger()); err != nil {
			return exitWithError(config.ErrInvalidConfig, "metrics: %v", err)
		}
		defer collector.Close()
	}

	tracer := telemetry.Noop()
	if opts.OTelEndpoint != "" {
		t, err := telemetry.New(telemetry.Options{
			Endpoint:        opts.OTelEndpoint,
			ServiceName:     defaults.ToolName,
			Insecure:        opts.OTelInsecure,
			ConnectTimeout:  duration.TelemetryConnect,
			ShutdownTimeout: duration.TelemetryShutdown,
		})
		if err != nil {
			log.Warn("tracing disabled", "error", err.Error())
		} else {
			tracer = t
		}
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			log.Warn("trace flush failed", "error", err.Error())
		}
	}()

	times := timetracker.New(timetracker.WithLogger(log.Logger()))
	rp := reaper.New(reaper.Options{Logger: log.Logger()})
	engine := pipeline.New(pipeline.Env{
		Log:        log,
		Times:      times,
		Reaper:     rp,
		Runner:     stage.NewRunner(stage.Options{Log: log, Times: times, Reaper: rp}),
		Metrics:    collector,
		Tracer:     tracer,
		Checkpoint: checkpoint.NewManager(filepath.Join(ws, defaults.RunStateFile)),
	}, pipeline.Options{
		Threads:         opts.Threads,
		HardTimeout:     opts.HardTimeout,
		ActivityTimeout: opts.ActivityTimeout,
		Workspace:       ws,
		Vars:            settings.Vars(),
		Resume:          opts.Resume,
		HangCheck:       opts.HangCheck,
	})

	ui.PrintSection("Configuration")
	ui.PrintConfigLine("Target", opts.Domain)
	ui.PrintConfigLine("Pipeline", fmt.Sprintf("%s (%d stages)", p.Name, len(p.Stages)))
	ui.PrintConfigLine("Workspace", ws)
	ui.PrintConfigLine("Threads", strconv.Itoa(opts.Threads))
	ui.PrintConfigLine("Hard timeout", opts.HardTimeout.String())
	if opts.ActivityTimeout > 0 {
		ui.PrintConfigLine("Activity timeout", opts.ActivityTimeout.String())
	} else {
		ui.PrintConfigLine("Activity timeout", "disabled")
	}
	ui.PrintConfigLine("Log file", log.FilePath())
	if opts.Resume {
		ui.PrintConfigLine("Resume", "yes")
	}

	if err := engine.Preflight(p); err != nil {
		return exitWithError(err, "%v", err)
	}

	ctx, cancel := cli.SignalContext(duration.SignalGrace, cli.OnInterrupt(func(sig os.Signal) {
		log.Warn("operator interrupt, terminating running stage", "signal", sig.String())
	}))
	defer cancel()

	ui.PrintSection("Pipeline")
	res, err := engine.Run(ctx, p, opts.Domain)
	if err != nil {
		return exitWithError(err, "%v", err)
	}
	if cli.Interrupted(ctx) {
		res.Interrupted = true
		res.Succeeded = false
	}

	now := time.Now()
	reportPath, err := writeReport(opts.ReportsDir, settings, p, res, now)
	if err != nil {
		log.Error("report failed", "error", err.Error())
	}

	hanging := log.CheckHanging()
	sum := log.Summary()
	tsum := times.Summary()

	if opts.JSON {
		out := runOutput{Result: res, Report: reportPath}
		for _, l := range tsum.Stages {
			out.Timings = append(out.Timings, timingOutput{Name: l.Name, Seconds: l.Duration.Seconds()})
		}
		for _, c := range hanging {
			out.Hanging = append(out.Hanging, hangingOutput{
				Stage: c.Stage, PID: c.PID, Command: c.Command, Seconds: c.Elapsed.Seconds(),
			})
		}
		enc := jsonutil.NewStreamEncoder(os.Stdout)
		enc.SetIndent("  ")
		if err := enc.Encode(out); err != nil {
			return exitWithError(errors.Join(stage.ErrUnexpected, err), "encode summary: %v", err)
		}
		return resultCode(res)
	}

	rows := make([]ui.StageRow, 0, len(res.Stages))
	for _, s := range res.Stages {
		rows = append(rows, ui.StageRow{
			Name:     s.Name,
			Phase:    string(s.Phase),
			Status:   string(s.Status),
			Duration: timetracker.Format(s.Duration),
			Note:     s.Note,
		})
	}
	ui.PrintRunSummary(os.Stderr, ui.RunSummary{
		Target:    res.Target,
		Workspace: res.Workspace,
		Report:    reportPath,
		Stages:    rows,
		Total:     tsum.Total.Formatted,
		Succeeded: res.Succeeded,
		Warnings:  sum.Warnings,
		Errors:    sum.Errors + sum.Critical,
		Hanging:   len(hanging),
	})
	for _, c := range hanging {
		ui.PrintWarning(fmt.Sprintf("still running: %s pid %d for %s", c.Stage, c.PID, timetracker.Format(c.Elapsed)))
	}
	if res.Interrupted {
		ui.PrintWarning("run interrupted; rerun with -resume to continue")
	}
	return resultCode(res)
}

// writeReport renders the recon report into its dated folder.
func writeReport(base string, settings *config.Settings, p *pipeline.Pipeline, res *pipeline.Result, now time.Time) (string, error) {
	path, err := report.Path(base, settings.ReportFolder("recon"), res.Target, report.FileName("recon", now), now)
	if err != nil {
		return "", err
	}
	if err := report.Write(path, report.Build(res, report.ReconStats, p.Directories, now)); err != nil {
		return "", err
	}
	return path, nil
}
