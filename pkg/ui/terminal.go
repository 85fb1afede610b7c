package ui

import (
	"os"
	"sync"

	"golang.org/x/term"
)

var (
	stderrTermOnce sync.Once
	stderrIsTerm   bool
)

// StderrIsTerminal reports whether stderr is attached to a terminal.
// Piped or redirected output returns false.
func StderrIsTerminal() bool {
	stderrTermOnce.Do(func() {
		stderrIsTerm = os.Getenv("TERM") != "dumb" && term.IsTerminal(int(os.Stderr.Fd()))
	})
	return stderrIsTerm
}

// AutoColor disables color when stderr is not a terminal or NO_COLOR is set.
func AutoColor() {
	if os.Getenv("NO_COLOR") != "" || !StderrIsTerminal() {
		SetNoColor(true)
	}
}
