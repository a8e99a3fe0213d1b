// Package tui renders stage views for terminals.
package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/aretw0/canopy"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a canopy.ContentRenderer that turns stage markdown into
// ANSI output with glamour. Non-terminal output gets the plain "notty" style.
func NewRenderer(out *os.File) canopy.ContentRenderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if !IsTerminal(out) {
		opts = []glamour.TermRendererOption{glamour.WithStandardStyle("notty")}
	} else if width, _, err := term.GetSize(int(out.Fd())); err == nil && width > 20 {
		opts = append(opts, glamour.WithWordWrap(width-4))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		// Fall back to the raw markdown.
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
