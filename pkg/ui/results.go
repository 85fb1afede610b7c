package ui

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StageRow is one line of the end-of-run stage table.
type StageRow struct {
	Name     string
	Phase    string
	Status   string
	Duration string
	Note     string
}

// RunSummary is what the end-of-run box shows.
type RunSummary struct {
	Target    string
	Workspace string
	Report    string
	Stages    []StageRow
	Total     string
	Succeeded bool
	Warnings  int
	Errors    int
	Hanging   int
}

var titleCaser = cases.Title(language.English)

// PhaseTitle renders a phase name like "active-scanning" as "Active Scanning".
func PhaseTitle(phase string) string {
	return titleCaser.String(strings.ReplaceAll(phase, "-", " "))
}

// WriteStageTable renders rows as an aligned plain table.
func WriteStageTable(w io.Writer, rows []StageRow) {
	nameW, phaseW, statusW := len("STAGE"), len("PHASE"), len("STATUS")
	for _, r := range rows {
		nameW = max(nameW, len(r.Name))
		phaseW = max(phaseW, len(PhaseTitle(r.Phase)))
		statusW = max(statusW, len(r.Status))
	}

	fmt.Fprintf(w, "  %-*s  %-*s  %-*s  %s\n", nameW, "STAGE", phaseW, "PHASE", statusW, "STATUS", "TIME")
	for _, r := range rows {
		status := StatusStyle(r.Status).Render(fmt.Sprintf("%-*s", statusW, r.Status))
		line := fmt.Sprintf("  %-*s  %-*s  %s  %s", nameW, r.Name, phaseW, PhaseTitle(r.Phase), status, r.Duration)
		if r.Note != "" {
			line += "  " + HelpStyle.Render(r.Note)
		}
		fmt.Fprintln(w, line)
	}
}

// PrintRunSummary prints the end-of-run summary to w.
func PrintRunSummary(w io.Writer, s RunSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("> Run Summary"))
	fmt.Fprintln(w, DividerStyle.Render(strings.Repeat("-", 75)))

	row := func(k, v string) {
		if v == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", ConfigLabelStyle.Render(k+":"), ConfigValueStyle.Render(v))
	}
	row("Target", s.Target)
	row("Workspace", s.Workspace)
	row("Report", s.Report)
	row("Total time", s.Total)
	fmt.Fprintln(w)

	WriteStageTable(w, s.Stages)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s %s   %s %s   %s %s\n",
		ConfigLabelStyle.Render("Warnings:"), StatValueStyle.Render(fmt.Sprint(s.Warnings)),
		"Errors:", StatValueStyle.Render(fmt.Sprint(s.Errors)),
		"Hanging:", StatValueStyle.Render(fmt.Sprint(s.Hanging)),
	)
	if s.Succeeded {
		fmt.Fprintln(w, PassStyle.Render("  [+] pipeline completed"))
	} else {
		fmt.Fprintln(w, FailStyle.Render("  [X] pipeline failed: a load-bearing stage did not succeed"))
	}
}
