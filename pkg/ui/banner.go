package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bagbounty/bagbounty/pkg/defaults"
)

const defaultVersion = defaults.Version

const bannerArt = `
    __                __                      __       
   / /_  ____ _____ _/ /_  ____  __  ______  / /___  __
  / __ \/ __ '/ __ '/ __ \/ __ \/ / / / __ \/ __/ / / /
 / /_/ / /_/ / /_/ / /_/ / /_/ / /_/ / / / / /_/ /_/ / 
/_.___/\__,_/\__, /_.___/\____/\__,_/_/ /_/\__/\__, /  
            /____/                            /____/   
`

const ruleWidth = 75

// PrintBanner writes the banner and version to stderr unless silent.
func PrintBanner() {
	if IsSilent() {
		return
	}
	fmt.Fprint(os.Stderr, BannerStyle.Render(bannerArt))
	fmt.Fprintf(os.Stderr, "\n  %s %s\n", HelpStyle.Render("supervised recon pipeline"), VersionStyle.Render("v"+Version))
	fmt.Fprintf(os.Stderr, "%s\n\n", rule(48))
}

func rule(n int) string {
	return DividerStyle.Render(strings.Repeat("_", n))
}

// PrintSection writes a section heading with a dashed rule.
func PrintSection(title string) {
	if IsSilent() {
		return
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, SectionStyle.Render("> "+title))
	fmt.Fprintln(os.Stderr, DividerStyle.Render(strings.Repeat("-", ruleWidth)))
}

// PrintConfigLine writes an aligned "key: value" line.
func PrintConfigLine(key, value string) {
	if IsSilent() {
		return
	}
	fmt.Fprintf(os.Stderr, "  %s %s\n", ConfigLabelStyle.Render(key+":"), ConfigValueStyle.Render(value))
}

// PrintHelp writes muted help text.
func PrintHelp(text string) {
	fmt.Fprintln(os.Stderr, HelpStyle.Render(text))
}

// Status lines. Each carries the same prefix the supervision console uses.

func PrintSuccess(message string) { status(PassStyle, "[+]", message) }
func PrintError(message string)   { status(FailStyle, "[X]", message) }
func PrintWarning(message string) { status(WarnStyle, "[!]", message) }
func PrintInfo(message string)    { status(InfoStyle, "[*]", message) }

func status(style lipgloss.Style, prefix, message string) {
	fmt.Fprintln(os.Stderr, style.Render("  "+prefix+" "+message))
}
