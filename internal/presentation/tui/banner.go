package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Tessera ASCII art banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"  _____                              ", "#34d399"},
		{" |_   _|__  ___ ___  ___ _ __ __ _   ", "#2dd4bf"},
		{"   | |/ _ \\/ __/ __|/ _ \\ '__/ _` |  ", "#22d3ee"},
		{"   | |  __/\\__ \\__ \\  __/ | | (_| |  ", "#38bdf8"},
		{"   |_|\\___||___/___/\\___|_|  \\__,_|  ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
