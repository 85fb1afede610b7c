// Package pipeline sequences supervised stages into a recon run. A pipeline
// is declared in YAML; each stage belongs to a phase, and a failure in a
// load-bearing phase (discovery, filtering) aborts the run while failures
// elsewhere are logged and skipped past.
package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase groups stages by purpose.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseCollection Phase = "collection"
	PhaseFiltering  Phase = "filtering"
	PhaseAnalysis   Phase = "analysis"
	PhaseScanning   Phase = "scanning"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseDiscovery, PhaseCollection, PhaseFiltering, PhaseAnalysis, PhaseScanning:
		return true
	}
	return false
}

// LoadBearing reports whether a failure in this phase aborts the run.
func (p Phase) LoadBearing() bool {
	return p == PhaseDiscovery || p == PhaseFiltering
}

// InputMode decides when a stage with several inputs may run.
type InputMode string

const (
	// InputsAll requires every input to exist and be non-empty.
	InputsAll InputMode = "all"
	// InputsAny requires at least one.
	InputsAny InputMode = "any"
)

// Pipeline is an ordered list of stages.
type Pipeline struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"`

	// Directories are created under the workspace before the first stage.
	Directories []string `yaml:"directories,omitempty"`

	Stages []StageDef `yaml:"stages"`
}

// StageDef declares one stage. Paths are relative to the workspace and may
// use variables. A stage has either a command or sub-tasks.
type StageDef struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name,omitempty"`
	Phase Phase  `yaml:"phase"`

	// Tool is the logical tool name checked before the run starts.
	Tool    string `yaml:"tool,omitempty"`
	Command string `yaml:"command,omitempty"`

	Inputs    []string  `yaml:"inputs,omitempty"`
	InputMode InputMode `yaml:"input-mode,omitempty"`

	Output        string `yaml:"output,omitempty"`
	Capture       bool   `yaml:"capture,omitempty"`
	RequireOutput bool   `yaml:"require-output,omitempty"`

	// Placeholders are created empty when the stage is skipped or an
	// optional stage fails, so downstream stages see the file.
	Placeholders []string `yaml:"placeholders,omitempty"`

	// Timeout and ActivityTimeout are Go durations. Empty uses the run
	// default; an activity timeout of "0" or "off" disables stall detection.
	Timeout         string `yaml:"timeout,omitempty"`
	ActivityTimeout string `yaml:"activity-timeout,omitempty"`

	Retries int `yaml:"retries,omitempty"`

	SubTasks []SubTask `yaml:"subtasks,omitempty"`
}

// SubTask is an independent invocation run on the stage's worker pool.
// Without its own inputs it sees the stage's.
type SubTask struct {
	Name    string `yaml:"name"`
	Tool    string `yaml:"tool,omitempty"`
	Command string `yaml:"command"`

	Inputs        []string `yaml:"inputs,omitempty"`
	Output        string   `yaml:"output,omitempty"`
	Capture       bool     `yaml:"capture,omitempty"`
	RequireOutput bool     `yaml:"require-output,omitempty"`

	Timeout         string `yaml:"timeout,omitempty"`
	ActivityTimeout string `yaml:"activity-timeout,omitempty"`
}

// LoadBearing reports whether the stage's failure aborts the run.
func (s StageDef) LoadBearing() bool { return s.Phase.LoadBearing() }

// LoadFile loads a pipeline from a YAML file.
func LoadFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a pipeline from YAML data.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate fills in defaults and checks the definition.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPipeline)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidPipeline)
	}

	ids := make(map[string]bool)
	names := make(map[string]bool)
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.ID == "" {
			s.ID = fmt.Sprintf("stage-%d", i+1)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.InputMode == "" {
			s.InputMode = InputsAll
		}
		if ids[s.ID] || names[s.Name] {
			return fmt.Errorf("%w: duplicate stage %q", ErrInvalidPipeline, s.ID)
		}
		ids[s.ID], names[s.Name] = true, true

		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: stage %s: %v", ErrInvalidPipeline, s.ID, err)
		}
	}
	return nil
}

func (s *StageDef) validate() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("unknown phase %q", s.Phase)
	}
	if s.InputMode != InputsAll && s.InputMode != InputsAny {
		return fmt.Errorf("unknown input-mode %q", s.InputMode)
	}
	if s.Retries < 0 {
		return fmt.Errorf("negative retries")
	}
	hasCmd := strings.TrimSpace(s.Command) != ""
	switch {
	case hasCmd && len(s.SubTasks) > 0:
		return fmt.Errorf("has both command and subtasks")
	case !hasCmd && len(s.SubTasks) == 0:
		return fmt.Errorf("has neither command nor subtasks")
	}
	if s.Capture && s.Output == "" {
		return fmt.Errorf("capture needs an output")
	}
	if err := checkTimeouts(s.Timeout, s.ActivityTimeout); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, st := range s.SubTasks {
		if st.Name == "" {
			return fmt.Errorf("subtask without name")
		}
		if seen[st.Name] {
			return fmt.Errorf("duplicate subtask %q", st.Name)
		}
		seen[st.Name] = true
		if strings.TrimSpace(st.Command) == "" {
			return fmt.Errorf("subtask %s: missing command", st.Name)
		}
		if st.Capture && st.Output == "" {
			return fmt.Errorf("subtask %s: capture needs an output", st.Name)
		}
		if err := checkTimeouts(st.Timeout, st.ActivityTimeout); err != nil {
			return fmt.Errorf("subtask %s: %w", st.Name, err)
		}
	}
	return nil
}

// checkTimeouts validates literal durations; templated ones are checked
// after expansion.
func checkTimeouts(hard, activity string) error {
	if hard != "" && !strings.Contains(hard, "{{") {
		d, err := time.ParseDuration(hard)
		if err != nil {
			return fmt.Errorf("timeout: %v", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
	}
	if activity != "" && !strings.Contains(activity, "{{") {
		if _, _, err := parseActivity(activity); err != nil {
			return err
		}
	}
	return nil
}

// parseHard parses a hard timeout, falling back to def when s is empty.
func parseHard(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("timeout: %v", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive")
	}
	return d, nil
}

// parseActivity parses an activity timeout. set is false when s is empty.
// A zero result with set means disabled.
func parseActivity(s string) (d time.Duration, set bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, false, nil
	case "0", "off", "none":
		return 0, true, nil
	}
	d, err = time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("activity-timeout: %v", err)
	}
	if d < 0 {
		return 0, false, fmt.Errorf("activity-timeout must not be negative")
	}
	return d, true, nil
}

// Tools returns the logical tool names the stages use, in first-use order.
func (p *Pipeline) Tools() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, s := range p.Stages {
		add(s.Tool)
		for _, st := range s.SubTasks {
			add(st.Tool)
		}
	}
	return out
}

// WithoutPhases returns a copy of p without stages in the given phases.
func (p *Pipeline) WithoutPhases(phases ...Phase) *Pipeline {
	drop := make(map[Phase]bool, len(phases))
	for _, ph := range phases {
		drop[ph] = true
	}
	cp := *p
	cp.Stages = nil
	for _, s := range p.Stages {
		if !drop[s.Phase] {
			cp.Stages = append(cp.Stages, s)
		}
	}
	return &cp
}

// Marshal renders p as YAML.
func (p *Pipeline) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
