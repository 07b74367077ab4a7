package output

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tanq16/chunkget/internal/engine"
)

// StatusTable renders persisted chunk state next to the planned ranges.
// chunks may be nil when the total length is unknown.
func StatusTable(states []engine.ChunkState, chunks []engine.ChunkSpec) string {
	t := table.New().Headers("Chunk", "Range", "Cached", "Progress", "Finished")
	t = t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	for i, st := range states {
		rangeText, progress := "-", "-"
		if i < len(chunks) && chunks[i].Index == st.Index {
			rangeText = fmt.Sprintf("%d-%d", chunks[i].Start, chunks[i].End)
			progress = ProgressBar(st.CachedSize, chunks[i].Length(), 20)
		}
		finished := FError(StyleSymbols["fail"])
		if st.Finished {
			finished = FSuccess(StyleSymbols["pass"])
		}
		t.Row(strconv.Itoa(st.Index), rangeText, FormatSize(st.CachedSize), progress, finished)
	}
	return t.String()
}
