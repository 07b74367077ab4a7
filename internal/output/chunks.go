package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/chunkget/internal/engine"
)

const maxChunkLines = 16

// ChunkDisplay renders one download with a bar per chunk. When the writer is
// not interactive only the final line is printed.
type ChunkDisplay struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	dest        string
	total       int64
	chunks      []engine.ChunkSpec
	startTime   time.Time
	resumed     int64
	seeded      bool
	numLines    int
}

func NewChunkDisplay(w io.Writer, interactive bool) *ChunkDisplay {
	return &ChunkDisplay{w: w, interactive: interactive}
}

func (d *ChunkDisplay) Start(dest string, total int64, chunks []engine.ChunkSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dest = dest
	d.total = total
	d.chunks = chunks
	d.startTime = time.Now()
	d.resumed = 0
	d.seeded = false
	d.numLines = 0
}

func (d *ChunkDisplay) Update(snapshot []engine.ChunkProgress) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seed(snapshot)
	if !d.interactive {
		return
	}
	d.clear()
	lines := d.render(snapshot)
	for _, line := range lines {
		fmt.Fprintln(d.w, line)
	}
	d.numLines = len(lines)
}

func (d *ChunkDisplay) Finish(snapshot []engine.ChunkProgress, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seed(snapshot)
	if d.interactive {
		d.clear()
	}
	elapsed := time.Since(d.startTime).Round(time.Second)
	name := filepath.Base(d.dest)
	if err != nil {
		fmt.Fprintf(d.w, "%s %s %s\n", errorStyle.Render(StyleSymbols["fail"]), debugStyle.Render(elapsed.String()), errorStyle.Render(fmt.Sprintf("Failed %s: %v", name, err)))
		if d.interactive {
			for _, p := range snapshot {
				if !p.Finished {
					fmt.Fprintf(d.w, "    %s\n", streamStyle.Render(fmt.Sprintf("chunk %d stopped at %s of %s", p.Index, FormatSize(p.Position), FormatSize(p.Length))))
				}
			}
		}
		return
	}
	downloaded := sumPositions(snapshot) - d.resumed
	message := fmt.Sprintf("Downloaded %s (%s)", name, FormatSize(d.total))
	if d.resumed > 0 {
		message += fmt.Sprintf(", resumed from %s", FormatSize(d.resumed))
	}
	fmt.Fprintf(d.w, "%s %s %s %s\n", successStyle.Render(StyleSymbols["pass"]), debugStyle.Render(elapsed.String()), successStyle.Render(message), debugStyle.Render(FormatSpeed(downloaded, time.Since(d.startTime))))
}

// seed records the bytes that were already cached when the first snapshot
// arrived so the speed only counts this session.
func (d *ChunkDisplay) seed(snapshot []engine.ChunkProgress) {
	if d.seeded {
		return
	}
	d.resumed = sumPositions(snapshot)
	d.seeded = true
}

func (d *ChunkDisplay) clear() {
	if d.numLines > 0 {
		fmt.Fprintf(d.w, "\033[%dA\033[J", d.numLines)
		d.numLines = 0
	}
}

func (d *ChunkDisplay) render(snapshot []engine.ChunkProgress) []string {
	elapsed := time.Since(d.startTime)
	current := sumPositions(snapshot)
	width := barWidth(d.w, 50)

	lines := []string{
		fmt.Sprintf("%s %s %s", pendingStyle.Render(StyleSymbols["pending"]), debugStyle.Render(elapsed.Round(time.Second).String()), pendingStyle.Render(fmt.Sprintf("Downloading %s", filepath.Base(d.dest)))),
		fmt.Sprintf("  %s %s %s %s", debugStyle.Render(ProgressBar(current, d.total, width)),
			debugStyle.Render(fmt.Sprintf("%s / %s", FormatSize(current), FormatSize(d.total))),
			StyleSymbols["bullet"], debugStyle.Render(FormatSpeed(current-d.resumed, elapsed))),
	}
	shown := snapshot
	if len(shown) > maxChunkLines {
		shown = shown[:maxChunkLines]
	}
	for _, p := range shown {
		marker := streamStyle.Render(StyleSymbols["dot"])
		if p.Finished {
			marker = successStyle.Render(StyleSymbols["pass"])
		}
		lines = append(lines, fmt.Sprintf("    %s %s %s", marker,
			streamStyle.Render(fmt.Sprintf("#%-3d", p.Index)),
			streamStyle.Render(ProgressBar(p.Position, p.Length, width-6))))
	}
	if hidden := len(snapshot) - len(shown); hidden > 0 {
		lines = append(lines, "    "+streamStyle.Render(fmt.Sprintf("%s %d more chunks", strings.Repeat(StyleSymbols["dot"], 3), hidden)))
	}
	return lines
}

func sumPositions(snapshot []engine.ChunkProgress) int64 {
	var sum int64
	for _, p := range snapshot {
		sum += p.Position
	}
	return sum
}
