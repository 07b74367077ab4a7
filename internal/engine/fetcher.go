package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tanq16/chunkget/internal/utils"
)

// ChunkLocation is a chunk together with the cache file holding its bytes.
type ChunkLocation struct {
	ChunkSpec
	Path string
}

type fetcher struct {
	client      RangeClient
	url         string
	tracker     *Tracker
	limiter     *rate.Limiter
	retries     int
	backoff     time.Duration
	bufferSize  int
	readTimeout time.Duration
}

// fetch brings the cache file of chunk up to its full length. Chunks already
// complete are reported without touching the network. The tracker position of
// the chunk must hold the resume offset when fetch is called.
func (f *fetcher) fetch(ctx context.Context, chunk ChunkSpec, decision Decision, path string) (ChunkLocation, error) {
	loc := ChunkLocation{ChunkSpec: chunk, Path: path}
	log := utils.GetLogger("chunk").With().Int("chunk", chunk.Index).Logger()
	if decision.Kind == AlreadyComplete {
		log.Debug().Str("file", path).Msg("Chunk already cached, skipping")
		f.tracker.MarkFinished(chunk.Index)
		return loc, nil
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return loc, ioError("open cache file", err)
	}
	defer file.Close()
	// Sparse on filesystems that support it; bytes already cached are kept.
	if err := file.Truncate(chunk.Length()); err != nil {
		return loc, ioError("size cache file", err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt+1) * f.backoff
			log.Debug().Int("attempt", attempt+1).Int("maxAttempts", f.retries+1).Dur("backoff", wait).Msg("Retrying chunk")
			select {
			case <-ctx.Done():
				return loc, transportError("retry chunk", ctx.Err())
			case <-time.After(wait):
			}
		}
		offset := f.tracker.Position(chunk.Index)
		if offset >= chunk.Length() {
			lastErr = nil
			break
		}
		lastErr = f.stream(ctx, file, chunk, offset, log)
		if lastErr == nil {
			break
		}
		log.Error().Err(lastErr).Int("attempt", attempt+1).Msg("Error downloading chunk")
		if errors.Is(lastErr, ErrIO) {
			break
		}
	}
	if lastErr != nil {
		return loc, lastErr
	}
	f.tracker.MarkFinished(chunk.Index)
	log.Debug().Int64("size", chunk.Length()).Msg("Chunk download completed")
	return loc, nil
}

// stream fetches [chunk.Start+offset, chunk.End) into file at offset. Each
// write is synced before the tracker advances.
func (f *fetcher) stream(ctx context.Context, file *os.File, chunk ChunkSpec, offset int64, log zerolog.Logger) error {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return ioError("seek cache file", err)
	}
	start := chunk.Start + offset
	rangeHeader := RangeHeader(start, chunk.End)
	log.Debug().Str("range", rangeHeader).Msg("Sending range request")
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	resp, err := f.client.Get(reqCtx, f.url, rangeHeader)
	if err != nil {
		return transportError("range request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return transportError("range request", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	if contentRange := resp.Header.Get("Content-Range"); contentRange != "" {
		gotStart, _, _, err := ParseContentRange(contentRange)
		if err != nil {
			return transportError("range response", err)
		}
		if gotStart != start {
			return transportError("range response", fmt.Errorf("server returned range starting at %d, requested %d", gotStart, start))
		}
	}

	var body io.Reader = resp.Body
	if f.readTimeout > 0 {
		idle := newIdleReader(body, f.readTimeout, cancel)
		defer idle.stop()
		body = idle
	}
	if f.limiter != nil {
		body = &limitedReader{ctx: reqCtx, r: body, limiter: f.limiter}
	}
	remaining := chunk.End - start
	buffer := make([]byte, f.bufferSize)
	var received int64
	for {
		n, readErr := body.Read(buffer)
		if n > 0 {
			if received+int64(n) > remaining {
				return transportError("range response", fmt.Errorf("server sent more than the %d bytes requested", remaining))
			}
			if _, err := file.Write(buffer[:n]); err != nil {
				return ioError("write cache file", err)
			}
			if err := file.Sync(); err != nil {
				return ioError("sync cache file", err)
			}
			received += int64(n)
			f.tracker.Increment(chunk.Index, int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return transportError("read response body", readErr)
		}
	}
	if received != remaining {
		return transportError("range response", fmt.Errorf("size mismatch: expected %d remaining bytes, got %d", remaining, received))
	}
	return nil
}
