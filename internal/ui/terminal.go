// Package ui provides terminal styling and output helpers for the flow CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 80

var stdout = termenv.NewOutput(os.Stdout)

func init() {
	lipgloss.SetColorProfile(colorProfile())
}

// colorProfile honors NO_COLOR, CLICOLOR and CLICOLOR_FORCE and falls back
// to plain text when stdout is not a terminal.
func colorProfile() termenv.Profile {
	return stdout.EnvColorProfile()
}

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor reports whether styled output is enabled.
func ShouldUseColor() bool {
	return colorProfile() != termenv.Ascii
}

// GetWidth returns the terminal width, or defaultWidth.
func GetWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}
