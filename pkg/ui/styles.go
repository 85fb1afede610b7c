package ui

import (
	"log/slog"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Brand  = lipgloss.Color("#E8590C") // orange
	Accent = lipgloss.Color("#20C997") // teal
	Text   = lipgloss.Color("#F1F3F5")
	Dim    = lipgloss.Color("#868E96")

	Green  = lipgloss.Color("#40C057")
	Yellow = lipgloss.Color("#FAB005")
	Red    = lipgloss.Color("#FA5252")
	Blue   = lipgloss.Color("#339AF0")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

// Styles shared by the CLI and the supervision console.
var (
	BannerStyle  = fg(Brand).Bold(true)
	VersionStyle = fg(Accent).Bold(true)
	SectionStyle = fg(Text).Bold(true).MarginTop(1)

	ConfigLabelStyle = fg(Dim).Width(18)
	ConfigValueStyle = fg(Text)
	StatValueStyle   = fg(Text).Bold(true)

	PassStyle = fg(Green).Bold(true)
	FailStyle = fg(Red).Bold(true)
	WarnStyle = fg(Yellow).Bold(true)
	InfoStyle = fg(Blue)

	DividerStyle   = fg(Dim)
	HelpStyle      = fg(Dim).Italic(true)
	TimestampStyle = fg(Dim)

	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(Red).Bold(true)
)

// StatusStyle returns the style for a stage status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "succeeded":
		return PassStyle
	case "failed":
		return FailStyle
	case "timed_out", "stalled":
		return WarnStyle
	default:
		return DividerStyle
	}
}

// LevelStyle returns the style for a log level. Anything above error is
// critical.
func LevelStyle(level slog.Level) lipgloss.Style {
	switch {
	case level > slog.LevelError:
		return criticalStyle
	case level == slog.LevelError:
		return FailStyle
	case level == slog.LevelWarn:
		return WarnStyle
	case level == slog.LevelInfo:
		return InfoStyle
	default:
		return DividerStyle
	}
}
