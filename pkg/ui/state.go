package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Version is reported by the banner and the version command. Override at
// build time with -ldflags "-X github.com/bagbounty/bagbounty/pkg/ui.Version=...".
var Version = defaultVersion

var (
	stateMu sync.RWMutex
	silent  bool
)

// SetSilent suppresses the banner and configuration lines, e.g. when the
// run summary goes to stdout as JSON.
func SetSilent(v bool) {
	stateMu.Lock()
	defer stateMu.Unlock()
	silent = v
}

// IsSilent reports whether SetSilent(true) is in effect.
func IsSilent() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return silent
}

// SetNoColor switches every style to plain ASCII output.
func SetNoColor(v bool) {
	if v {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
