// Package report places run reports under the reports directory and
// renders the markdown run report.
//
// Reports live at <base>/<type folder>/<domain>/<YYYY-MM-DD>/<file>.
package report

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/bagbounty/bagbounty/pkg/pipeline"
	"github.com/bagbounty/bagbounty/pkg/timetracker"
)

//go:embed templates/recon.md.tmpl
var reconTemplate string

// Path returns the placement of file for a report type and creates its
// directory.
func Path(base, folder, domain, file string, now time.Time) (string, error) {
	if folder == "" || domain == "" || file == "" {
		return "", fmt.Errorf("report path: folder, domain and file are required")
	}
	dir := filepath.Join(base, folder, domain, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	return filepath.Join(dir, file), nil
}

// FileName returns the timestamped file name for a report of kind.
func FileName(kind string, now time.Time) string {
	return fmt.Sprintf("%s_report_%s.md", kind, now.Format("20060102_150405"))
}

// CountLines counts non-blank lines in path. A missing file counts as zero.
func CountLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n
}

// StatFile names a workspace file whose line count is reported.
type StatFile struct {
	Label string
	Path  string // relative to the workspace
}

// ReconStats are the counts shown in the recon report.
var ReconStats = []StatFile{
	{Label: "Subdomains", Path: "subdomains/subdomains.txt"},
	{Label: "Live hosts", Path: "subdomains/alive.txt"},
	{Label: "Total URLs", Path: "urls/all_urls.txt"},
	{Label: "Filtered URLs", Path: "urls/filtered.txt"},
	{Label: "Sensitive files", Path: "urls/sensitive_files.txt"},
	{Label: "URLs with parameters", Path: "urls/param_urls.txt"},
	{Label: "Nuclei findings", Path: "analysis/nuclei.txt"},
}

// Stat is one rendered statistic.
type Stat struct {
	Label string
	Count int
}

// StageLine is one row of the stage table.
type StageLine struct {
	Name     string
	Phase    string
	Status   string
	Duration string
	Note     string
	Error    string
}

// Data is the template input.
type Data struct {
	Domain      string
	Pipeline    string
	Generated   time.Time
	Duration    string
	Succeeded   bool
	Interrupted bool
	AbortedBy   string
	Stats       []Stat
	Stages      []StageLine
	Failures    []StageLine
	Directories []string
}

// Build collects report data from a finished run. dirs are workspace
// relative.
func Build(res *pipeline.Result, stats []StatFile, dirs []string, now time.Time) Data {
	d := Data{
		Domain:      res.Target,
		Pipeline:    res.Pipeline,
		Generated:   now,
		Duration:    timetracker.Format(res.Duration),
		Succeeded:   res.Succeeded,
		Interrupted: res.Interrupted,
		AbortedBy:   res.AbortedBy,
	}
	for _, s := range stats {
		d.Stats = append(d.Stats, Stat{
			Label: s.Label,
			Count: CountLines(filepath.Join(res.Workspace, s.Path)),
		})
	}
	for _, s := range res.Stages {
		line := StageLine{
			Name:     s.Name,
			Phase:    string(s.Phase),
			Status:   string(s.Status),
			Duration: timetracker.Format(s.Duration),
			Note:     s.Note,
			Error:    s.Error,
		}
		d.Stages = append(d.Stages, line)
		if s.Status.Failed() {
			d.Failures = append(d.Failures, line)
		}
	}
	for _, dir := range dirs {
		d.Directories = append(d.Directories, filepath.Join(res.Workspace, filepath.FromSlash(dir)))
	}
	return d
}

// Render executes the recon template.
func Render(d Data) ([]byte, error) {
	funcMap := sprig.TxtFuncMap()
	funcMap["cell"] = markdownCell

	tmpl, err := template.New("recon").Funcs(funcMap).Parse(reconTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders d to path through a temp file and rename.
func Write(path string, d Data) error {
	out, err := Render(d)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// markdownCell keeps a value on one table row.
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}
