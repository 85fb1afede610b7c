package pipeline

import (
	"time"

	"github.com/bagbounty/bagbounty/pkg/stage"
)

// SubTaskResult is the outcome of one sub-task.
type SubTaskResult struct {
	Name     string        `json:"name"`
	Status   stage.Status  `json:"status"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Seconds  float64       `json:"duration_seconds"`
	Duration time.Duration `json:"-"`
	Err      error         `json:"-"`
}

// StageResult is the outcome of one stage.
type StageResult struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Phase       Phase           `json:"phase"`
	LoadBearing bool            `json:"load_bearing"`
	Status      stage.Status    `json:"status"`
	ExitCode    int             `json:"exit_code"`
	Attempts    int             `json:"attempts,omitempty"`
	Output      string          `json:"output,omitempty"`
	Note        string          `json:"note,omitempty"`
	Error       string          `json:"error,omitempty"`
	Seconds     float64         `json:"duration_seconds"`
	SubTasks    []SubTaskResult `json:"subtasks,omitempty"`
	Duration    time.Duration   `json:"-"`
	Err         error           `json:"-"`
}

// Result is the outcome of a run.
type Result struct {
	Pipeline    string        `json:"pipeline"`
	Target      string        `json:"target"`
	Workspace   string        `json:"workspace"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Seconds     float64       `json:"duration_seconds"`
	Stages      []StageResult `json:"stages"`
	Aborted     bool          `json:"aborted"`
	AbortedBy   string        `json:"aborted_by,omitempty"`
	Interrupted bool          `json:"interrupted"`
	Succeeded   bool          `json:"succeeded"`
	Duration    time.Duration `json:"-"`
}

// Stage returns the result for a stage id.
func (r *Result) Stage(id string) (*StageResult, bool) {
	for i := range r.Stages {
		if r.Stages[i].ID == id {
			return &r.Stages[i], true
		}
	}
	return nil, false
}

// Failures returns every stage that ended in a failure status.
func (r *Result) Failures() []StageResult {
	var out []StageResult
	for _, s := range r.Stages {
		if s.Status.Failed() {
			out = append(out, s)
		}
	}
	return out
}

func (s *StageResult) finish(err error, d time.Duration) {
	s.Err = err
	if err != nil {
		s.Error = err.Error()
	}
	s.Duration = d
	s.Seconds = d.Seconds()
}

func (s *SubTaskResult) finish(err error, d time.Duration) {
	s.Err = err
	if err != nil {
		s.Error = err.Error()
	}
	s.Duration = d
	s.Seconds = d.Seconds()
}
