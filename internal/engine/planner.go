package engine

import (
	"fmt"

	"github.com/tanq16/chunkget/internal/utils"
)

// ChunkSpec is one byte range of the remote resource, half-open [Start, End).
// Index is 1-based.
type ChunkSpec struct {
	Index int
	Start int64
	End   int64
}

func (c ChunkSpec) Length() int64 {
	return c.End - c.Start
}

// ChunkState is the resumable state of one chunk as stored in the status file.
type ChunkState struct {
	Index      int   `json:"thread"`
	CachedSize int64 `json:"cached_size"`
	Finished   bool  `json:"finished"`
}

type DecisionKind int

const (
	FetchFrom DecisionKind = iota
	AlreadyComplete
)

func (k DecisionKind) String() string {
	switch k {
	case FetchFrom:
		return "fetch"
	case AlreadyComplete:
		return "complete"
	}
	return "unknown"
}

// Decision says what a chunk task has to do. Offset is the resume offset
// within the chunk and is only meaningful for FetchFrom.
type Decision struct {
	Kind   DecisionKind
	Offset int64
}

// Plan is the reconciled chunk layout for one download.
type Plan struct {
	Total     int64
	Chunks    []ChunkSpec
	States    []ChunkState
	Decisions []Decision
}

// Partition splits [0, total) into threads contiguous chunks. Every chunk but
// the last is total/threads - 1 bytes long; the last chunk always ends at total
// and absorbs the remainder.
func Partition(threads int, total int64) []ChunkSpec {
	base := total/int64(threads) - 1
	if base < 0 {
		base = 0
	}
	chunks := make([]ChunkSpec, threads)
	var start int64
	for i := 0; i < threads; i++ {
		end := start + base
		if i == threads-1 {
			end = total
		}
		chunks[i] = ChunkSpec{Index: i + 1, Start: start, End: end}
		start = end
	}
	return chunks
}

// PlanChunks partitions the resource and reconciles the partition against a
// previously persisted status. A status whose length differs from threads is
// ignored and every chunk starts from zero.
func PlanChunks(threads int, total int64, persisted []ChunkState) (*Plan, error) {
	if threads < 1 {
		return nil, configError("thread count must be at least 1, got %d", threads)
	}
	if total < 0 {
		return nil, configError("invalid total length %d", total)
	}

	known := make(map[int]ChunkState, len(persisted))
	if len(persisted) == threads {
		for _, st := range persisted {
			if st.Index >= 1 && st.Index <= threads {
				known[st.Index] = st
			}
		}
	} else if len(persisted) > 0 {
		log := utils.GetLogger("planner")
		log.Debug().Int("persisted", len(persisted)).Int("threads", threads).Msg("Thread count changed, discarding persisted status")
	}

	plan := &Plan{
		Total:     total,
		Chunks:    Partition(threads, total),
		States:    make([]ChunkState, threads),
		Decisions: make([]Decision, threads),
	}
	for i, chunk := range plan.Chunks {
		length := chunk.Length()
		st, ok := known[chunk.Index]
		cached := int64(0)
		if ok {
			cached = max(st.CachedSize, 0)
		}
		if (ok && st.Finished) || cached >= length {
			plan.States[i] = ChunkState{Index: chunk.Index, CachedSize: length, Finished: true}
			plan.Decisions[i] = Decision{Kind: AlreadyComplete}
			continue
		}
		plan.States[i] = ChunkState{Index: chunk.Index, CachedSize: cached}
		plan.Decisions[i] = Decision{Kind: FetchFrom, Offset: cached}
	}
	return plan, nil
}

// Remaining is the number of bytes that still have to be fetched.
func (p *Plan) Remaining() int64 {
	var n int64
	for i, d := range p.Decisions {
		if d.Kind == FetchFrom {
			n += p.Chunks[i].Length() - d.Offset
		}
	}
	return n
}

func (p *Plan) String() string {
	return fmt.Sprintf("plan{total=%d chunks=%d remaining=%d}", p.Total, len(p.Chunks), p.Remaining())
}
