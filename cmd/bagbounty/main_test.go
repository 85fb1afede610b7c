package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagbounty/bagbounty/pkg/config"
	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/pipeline"
	"github.com/bagbounty/bagbounty/pkg/reaper"
	"github.com/bagbounty/bagbounty/pkg/stage"
	"github.com/bagbounty/bagbounty/pkg/testutil"
	"github.com/bagbounty/bagbounty/pkg/ui"
)

func init() {
	ui.SetNoColor(true)
	ui.SetSilent(true)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, defaults.ExitSuccess},
		{fmt.Errorf("preflight: %w", stage.ErrToolNotFound), defaults.ExitToolNotFound},
		{fmt.Errorf("%w: threads", config.ErrInvalidConfig), defaults.ExitUserError},
		{fmt.Errorf("%w: domain", config.ErrMissingRequired), defaults.ExitUserError},
		{pipeline.ErrInvalidPipeline, defaults.ExitUserError},
		{pipeline.ErrInvalidTarget, defaults.ExitUserError},
		{errors.New("disk full"), defaults.ExitInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestResultCode(t *testing.T) {
	assert.Equal(t, defaults.ExitSuccess, resultCode(&pipeline.Result{Succeeded: true}))
	assert.Equal(t, defaults.ExitPipelineFailed, resultCode(&pipeline.Result{Aborted: true}))
	assert.Equal(t, defaults.ExitInterrupted, resultCode(&pipeline.Result{Interrupted: true}))
}

func TestDispatch(t *testing.T) {
	assert.Equal(t, defaults.ExitUserError, dispatch(nil))
	assert.Equal(t, defaults.ExitUserError, dispatch([]string{"frobnicate"}))
	assert.Equal(t, defaults.ExitSuccess, dispatch([]string{"help"}))
	assert.Equal(t, defaults.ExitUserError, dispatch([]string{"run"}))
	assert.Equal(t, defaults.ExitUserError, dispatch([]string{"run", "not a domain"}))
	assert.Equal(t, defaults.ExitUserError, dispatch([]string{"run", "example.com", "-threads", "0"}))
}

func TestLoadPipelineExcludesPhases(t *testing.T) {
	p, err := loadPipeline("", true, false)
	require.NoError(t, err)
	for _, s := range p.Stages {
		assert.Contains(t, []pipeline.Phase{pipeline.PhaseDiscovery, pipeline.PhaseCollection}, s.Phase, s.ID)
	}

	p, err = loadPipeline("", false, true)
	require.NoError(t, err)
	for _, s := range p.Stages {
		assert.NotEqual(t, pipeline.PhaseScanning, s.Phase, s.ID)
	}
	assert.Less(t, len(p.Stages), len(pipeline.Builtin().Stages))
}

const depsPipeline = `
name: deps
stages:
  - id: find
    phase: discovery
    tool: fakefinder
    command: "{{tool.fakefinder}} {{domain}}"
`

func TestCheckDeps(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(file, []byte(depsPipeline), 0o644))

	t.Setenv("PATH", dir)
	assert.Equal(t, defaults.ExitToolNotFound, dispatch([]string{"check-deps", "-pipeline", file, "-no-color"}))

	testutil.FakeTool(t, dir, "fakefinder", "echo a.example.com")
	assert.Equal(t, defaults.ExitSuccess, dispatch([]string{"check-deps", "-pipeline", file, "-no-color"}))
}

func TestRunInvalidConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(file, []byte("ports: [70000]\n"), 0o644))
	assert.Equal(t, defaults.ExitUserError, dispatch([]string{"run", "example.com", "-config", file}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "katana -u x", truncate("  katana -u x ", 80))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
}

func TestKillOrder(t *testing.T) {
	tree := reaper.Tree{
		Root:        reaper.Process{PID: 100},
		Descendants: []reaper.Process{{PID: 102}, {PID: 101}},
	}
	assert.Equal(t, "102 101 100", killOrder(tree))
}
