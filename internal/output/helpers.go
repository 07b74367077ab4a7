package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// ProgressBar renders current/total as a fixed-width bar followed by the percentage.
func ProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	percent := 1.0
	if total > 0 {
		current = max(0, min(current, total))
		percent = float64(current) / float64(total)
	}
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return fmt.Sprintf("%s %5.1f%%", bar, percent*100)
}

func FormatSpeed(bytes int64, elapsed time.Duration) string {
	seconds := elapsed.Seconds()
	if seconds <= 0 || bytes <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(float64(bytes)/seconds)) + "/s"
}

func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(max(0, bytes)))
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func terminalSize(w io.Writer) (width, height int) {
	width, height = 80, 24
	f, ok := w.(*os.File)
	if !ok {
		return width, height
	}
	if tw, th, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 && th > 0 {
		return tw, th
	}
	return width, height
}

// barWidth leaves room for the text printed around a bar.
func barWidth(w io.Writer, reserved int) int {
	width, _ := terminalSize(w)
	return max(10, min(40, width-reserved))
}
