package engine

import (
	"sort"
	"sync/atomic"
)

type counter struct {
	length   int64
	position atomic.Int64
	finished atomic.Bool
}

// ChunkProgress is one entry of a tracker snapshot.
type ChunkProgress struct {
	Index    int
	Length   int64
	Position int64
	Finished bool
}

// Tracker holds one counter per chunk. All chunks are registered with Add
// before any fetcher starts; after that the set of counters is read-only and
// each counter is written only by the fetcher that owns it.
type Tracker struct {
	counters map[int]*counter
	order    []int
}

func NewTracker() *Tracker {
	return &Tracker{counters: make(map[int]*counter)}
}

// Add registers a chunk of the given length. Not safe to call concurrently
// with the other methods.
func (t *Tracker) Add(index int, length int64) {
	if _, ok := t.counters[index]; ok {
		return
	}
	t.counters[index] = &counter{length: length}
	t.order = append(t.order, index)
	sort.Ints(t.order)
}

func (t *Tracker) Increment(index int, n int64) {
	if c, ok := t.counters[index]; ok {
		c.position.Add(n)
	}
}

func (t *Tracker) SetPosition(index int, n int64) {
	if c, ok := t.counters[index]; ok {
		c.position.Store(n)
	}
}

func (t *Tracker) Position(index int) int64 {
	if c, ok := t.counters[index]; ok {
		return c.position.Load()
	}
	return 0
}

func (t *Tracker) MarkFinished(index int) {
	if c, ok := t.counters[index]; ok {
		c.finished.Store(true)
	}
}

// AllFinished reports whether every registered chunk is finished.
func (t *Tracker) AllFinished() bool {
	for _, c := range t.counters {
		if !c.finished.Load() {
			return false
		}
	}
	return true
}

// Snapshot returns the per-chunk state ordered by chunk index.
func (t *Tracker) Snapshot() []ChunkProgress {
	out := make([]ChunkProgress, 0, len(t.order))
	for _, index := range t.order {
		c := t.counters[index]
		out = append(out, ChunkProgress{
			Index:    index,
			Length:   c.length,
			Position: c.position.Load(),
			Finished: c.finished.Load(),
		})
	}
	return out
}

// States converts a snapshot into the persisted status form.
func States(snapshot []ChunkProgress) []ChunkState {
	states := make([]ChunkState, len(snapshot))
	for i, p := range snapshot {
		states[i] = ChunkState{Index: p.Index, CachedSize: p.Position, Finished: p.Finished}
	}
	return states
}
