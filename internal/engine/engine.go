package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tanq16/chunkget/internal/utils"
)

// ProgressSink receives tracker snapshots while a download runs. Aggregation
// and rendering are left to the sink.
type ProgressSink interface {
	Start(dest string, total int64, chunks []ChunkSpec)
	Update(snapshot []ChunkProgress)
	Finish(snapshot []ChunkProgress, err error)
}

type Options struct {
	// Threads is the number of chunks, and of concurrent chunk tasks.
	Threads int

	// KeepCache leaves the cache directory in place after a successful assembly.
	KeepCache bool

	// StatusInterval is how often the status file is rewritten.
	// Default: 1s
	StatusInterval time.Duration

	// SinkInterval is how often the progress sink receives a snapshot.
	// Default: 200ms
	SinkInterval time.Duration

	// Retries is the number of extra attempts per chunk after a transport failure.
	Retries int

	// RetryBackoff is multiplied by attempt+1 between attempts.
	// Default: 500ms
	RetryBackoff time.Duration

	// RateLimit caps the download in bytes per second; 0 means unlimited.
	RateLimit int64

	// BufferSize is the read buffer size per chunk task.
	BufferSize int

	// ReadTimeout aborts a chunk attempt when its body delivers no bytes for
	// this long; the attempt then counts as a transport failure. 0 disables it.
	// Default: 1m
	ReadTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Threads:        8,
		StatusInterval: time.Second,
		SinkInterval:   200 * time.Millisecond,
		RetryBackoff:   500 * time.Millisecond,
		BufferSize:     utils.DefaultBufferSize,
		ReadTimeout:    time.Minute,
	}
}

// Downloader runs resumable multi-chunk downloads through one RangeClient.
// A Downloader may be shared, but two downloads must not target the same
// destination at the same time.
type Downloader struct {
	client RangeClient
	opts   Options
}

func New(client RangeClient, opts Options) *Downloader {
	def := DefaultOptions()
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = def.StatusInterval
	}
	if opts.SinkInterval <= 0 {
		opts.SinkInterval = def.SinkInterval
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Downloader{client: client, opts: opts}
}

// Download fetches url into dest with the given thread count. sink may be nil.
func Download(ctx context.Context, client RangeClient, url string, threads int, dest string, keepCache bool, sink ProgressSink) error {
	opts := DefaultOptions()
	opts.Threads = threads
	opts.KeepCache = keepCache
	return New(client, opts).Download(ctx, url, dest, sink)
}

// Download fetches url into dest. Configuration problems and resources without
// a total length abort before anything is written. Chunk failures are returned
// as a *FetchError after every chunk task has ended, and the cache directory is
// kept so that the next call resumes.
func (d *Downloader) Download(ctx context.Context, url, dest string, sink ProgressSink) error {
	log := utils.GetLogger("engine").With().Str("url", url).Logger()
	if d.opts.Threads < 1 {
		return configError("thread count must be at least 1, got %d", d.opts.Threads)
	}
	if err := validateDestination(dest); err != nil {
		return err
	}

	total, err := ProbeLength(ctx, d.client, url)
	if err != nil {
		return err
	}

	cacheDir := CacheDir(dest, url)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return ioError("create cache directory", err)
	}
	persisted, err := LoadStatus(cacheDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cacheDir).Msg("Discarding unreadable download status")
		persisted = nil
	}
	persisted = reconcileCache(persisted, cacheDir, dest)

	plan, err := PlanChunks(d.opts.Threads, total, persisted)
	if err != nil {
		return err
	}
	tracker := NewTracker()
	for i, chunk := range plan.Chunks {
		tracker.Add(chunk.Index, chunk.Length())
		tracker.SetPosition(chunk.Index, plan.States[i].CachedSize)
		if plan.States[i].Finished {
			tracker.MarkFinished(chunk.Index)
		}
	}
	log.Info().Int64("total", total).Int("threads", d.opts.Threads).Int64("remaining", plan.Remaining()).Str("output", dest).Msg("Starting download")
	if sink != nil {
		sink.Start(dest, total, plan.Chunks)
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		newPersister(cacheDir, tracker, d.opts.StatusInterval).run(bgCtx)
	}()
	if sink != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			report(bgCtx, sink, tracker, d.opts.SinkInterval)
		}()
	}

	locations, err := d.fetchAll(ctx, url, dest, cacheDir, plan, tracker)
	stopBackground()
	bg.Wait()

	if err == nil {
		err = Assemble(dest, total, locations)
	}
	if err == nil && !d.opts.KeepCache {
		removeCache(cacheDir)
	}
	if sink != nil {
		sink.Finish(tracker.Snapshot(), err)
	}
	if err != nil {
		log.Error().Err(err).Str("output", dest).Msg("Download failed")
		return err
	}
	log.Info().Str("output", dest).Int64("total", total).Msg("Download completed")
	return nil
}

// fetchAll runs one task per chunk and waits for all of them. A failed chunk
// does not stop its siblings.
func (d *Downloader) fetchAll(ctx context.Context, url, dest, cacheDir string, plan *Plan, tracker *Tracker) ([]ChunkLocation, error) {
	f := &fetcher{
		client:      d.client,
		url:         url,
		tracker:     tracker,
		limiter:     newLimiter(d.opts.RateLimit),
		retries:     d.opts.Retries,
		backoff:     d.opts.RetryBackoff,
		bufferSize:  d.opts.BufferSize,
		readTimeout: d.opts.ReadTimeout,
	}
	locations := make([]ChunkLocation, len(plan.Chunks))
	failures := make([]*ChunkError, len(plan.Chunks))

	var g errgroup.Group
	g.SetLimit(d.opts.Threads)
	for i, chunk := range plan.Chunks {
		i, chunk := i, chunk
		path := CacheFile(cacheDir, dest, chunk.Index)
		decision := plan.Decisions[i]
		g.Go(func() error {
			loc, err := f.fetch(ctx, chunk, decision, path)
			locations[i] = loc
			if err != nil {
				failures[i] = &ChunkError{Index: chunk.Index, Err: err}
				return failures[i]
			}
			return nil
		})
	}
	g.Wait()

	var failed []*ChunkError
	for _, ce := range failures {
		if ce != nil {
			failed = append(failed, ce)
		}
	}
	if len(failed) > 0 {
		return nil, newFetchError(failed)
	}
	return locations, nil
}

func report(ctx context.Context, sink ProgressSink, tracker *Tracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sink.Update(tracker.Snapshot())
		}
	}
}

func validateDestination(dest string) error {
	if strings.TrimSpace(dest) == "" {
		return configError("destination path is empty")
	}
	if strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, string(os.PathSeparator)) {
		return configError("destination %q should not be a directory", dest)
	}
	switch filepath.Base(dest) {
	case ".", "..", string(os.PathSeparator):
		return configError("destination %q should not be a directory", dest)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return configError("destination %q should not be a directory", dest)
	}
	return nil
}

// reconcileCache resets persisted chunks whose cache file has disappeared.
func reconcileCache(states []ChunkState, cacheDir, dest string) []ChunkState {
	out := make([]ChunkState, len(states))
	for i, st := range states {
		out[i] = st
		if st.CachedSize <= 0 && !st.Finished {
			continue
		}
		if _, err := os.Stat(CacheFile(cacheDir, dest, st.Index)); errors.Is(err, os.ErrNotExist) {
			out[i] = ChunkState{Index: st.Index}
		}
	}
	return out
}

// removeCache deletes the per-URL cache directory and the .cache parent when
// nothing else is left in it.
func removeCache(cacheDir string) {
	log := utils.GetLogger("engine")
	if err := os.RemoveAll(cacheDir); err != nil {
		log.Warn().Err(err).Str("dir", cacheDir).Msg("Failed to remove cache directory")
		return
	}
	os.Remove(filepath.Dir(cacheDir))
}
