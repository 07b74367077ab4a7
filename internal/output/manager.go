package output

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/tanq16/chunkget/internal/engine"
)

type JobOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager shows the state of several concurrent downloads. Each registered
// job gets a ProgressSink through Sink.
type Manager struct {
	w           io.Writer
	interactive bool
	outputs     map[int]*JobOutput
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	jobCount    int
	displayWg   sync.WaitGroup
}

func NewManager(w io.Writer, interactive bool) *Manager {
	return &Manager{
		w:           w,
		interactive: interactive,
		outputs:     make(map[int]*JobOutput),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.jobCount++
	m.outputs[m.jobCount] = &JobOutput{
		ID:          m.jobCount,
		Name:        name,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.jobCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = nil
		if message == "" {
			info.Message = fmt.Sprintf("Completed %s", info.Name)
		} else {
			info.Message = message
		}
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Complete = true
		info.Status = "error"
		info.Message = fmt.Sprintf("Failed %s", info.Name)
		info.Error = err
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{
			Name:  info.Name,
			Error: err,
			Time:  time.Now(),
		})
	}
}

func (m *Manager) setProgress(id int, current, total int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Status = "active"
		elapsed := time.Since(info.StartTime)
		bar := ProgressBar(current, total, 30)
		info.StreamLines = []string{fmt.Sprintf("%s %s %s %s", bar, StyleSymbols["bullet"],
			fmt.Sprintf("%s / %s", FormatSize(current), FormatSize(total)), FormatSpeed(current, elapsed))}
		info.LastUpdated = time.Now()
	}
}

// Sink adapts job id to the engine's progress callbacks.
func (m *Manager) Sink(id int) engine.ProgressSink {
	return &jobSink{manager: m, id: id}
}

type jobSink struct {
	manager *Manager
	id      int
	total   int64
}

func (s *jobSink) Start(dest string, total int64, chunks []engine.ChunkSpec) {
	s.total = total
	s.manager.SetMessage(s.id, fmt.Sprintf("Downloading %s (%d chunks)", dest, len(chunks)))
	s.manager.setProgress(s.id, 0, total)
}

func (s *jobSink) Update(snapshot []engine.ChunkProgress) {
	s.manager.setProgress(s.id, sumPositions(snapshot), s.total)
}

// Finish leaves the final state to Complete or ReportError.
func (s *jobSink) Finish(snapshot []engine.ChunkProgress, err error) {
	s.manager.setProgress(s.id, sumPositions(snapshot), s.total)
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortJobs() (active, completed []*JobOutput) {
	var all []*JobOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})
	for _, info := range all {
		if info.Complete {
			completed = append(completed, info)
		} else {
			active = append(active, info)
		}
	}
	return active, completed
}

func (m *Manager) renderJob(info *JobOutput) []string {
	elapsed := time.Since(info.StartTime).Round(time.Second)
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	}
	message := info.Message
	var styled string
	switch info.Status {
	case "success":
		styled = successStyle.Render(message)
	case "error":
		styled = errorStyle.Render(message)
	case "pending":
		styled = pendingStyle.Render("Waiting...")
	default:
		styled = pendingStyle.Render(message)
	}
	lines := []string{fmt.Sprintf("  %s %s %s", m.statusIndicator(info.Status), debugStyle.Render(elapsed.String()), styled)}
	for _, line := range info.StreamLines {
		lines = append(lines, "      "+streamStyle.Render(line))
	}
	return lines
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, termHeight := terminalSize(m.w)
	available := termHeight - 3

	if m.numLines > 0 {
		fmt.Fprintf(m.w, "\033[%dA\033[J", m.numLines)
	}
	active, completed := m.sortJobs()
	var lines []string
	for _, info := range active {
		lines = append(lines, m.renderJob(info)...)
	}
	var done []string
	for _, info := range completed {
		done = append(done, m.renderJob(info)...)
	}
	if room := available - len(lines); room < len(done) {
		done = done[len(done)-max(0, room):]
	}
	lines = append(lines, done...)
	if len(lines) > available {
		lines = lines[:max(0, available)]
	}
	for _, line := range lines {
		fmt.Fprintln(m.w, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.interactive {
					m.updateDisplay()
				}
			case <-m.doneCh:
				if m.interactive {
					m.updateDisplay()
				}
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.w)
	fmt.Fprintln(m.w, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, report := range m.errors {
		fmt.Fprintf(m.w, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
			errorStyle.Render(report.Name))
		fmt.Fprintf(m.w, "      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", report.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var success, failures int
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	fmt.Fprintln(m.w)
	fmt.Fprintln(m.w, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.w, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.w)
}
