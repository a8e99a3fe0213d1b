package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`   ____                              `, "#bbf7d0"},
	{`  / ___|__ _ _ __   ___  _ __  _   _ `, "#86efac"},
	{` | |   / _' | '_ \ / _ \| '_ \| | | |`, "#4ade80"},
	{` | |__| (_| | | | | (_) | |_) | |_| |`, "#22c55e"},
	{`  \____\__,_|_| |_|\___/| .__/ \__, |`, "#16a34a"},
	{`                        |_|    |___/ `, "#15803d"},
}

// PrintBanner writes the Canopy ASCII banner in a green gradient.
func PrintBanner(w io.Writer) {
	p := termenv.NewOutput(w).ColorProfile()
	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, termenv.String(line.text).Foreground(p.Color(line.color)))
	}
	fmt.Fprintln(w)
}
