package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

var errInjected = errors.New("injected connection reset")

// fakeSource serves data as a range-capable resource and records every
// Range header it receives.
type fakeSource struct {
	data []byte

	// cut, when set, is called for every ranged request with the range start
	// and how many requests for that start came before. A non-negative return
	// value truncates the body after that many bytes with errInjected.
	cut func(start int64, seen int) int64

	// stall works like cut but blocks after the limit until the request
	// context is cancelled.
	stall func(start int64, seen int) int64

	mu       sync.Mutex
	requests []string
	seen     map[int64]int
}

func newFakeSource(data []byte) *fakeSource {
	return &fakeSource{data: data, seen: make(map[int64]int)}
}

func (f *fakeSource) Get(ctx context.Context, url string, rangeHeader string) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, rangeHeader)
	f.mu.Unlock()

	total := int64(len(f.data))
	var start, end int64
	if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end); err != nil {
		return nil, fmt.Errorf("bad range %q", rangeHeader)
	}
	if start >= total {
		return &Response{
			StatusCode: http.StatusRequestedRangeNotSatisfiable,
			Header:     http.Header{"Content-Range": []string{fmt.Sprintf("bytes */%d", total)}},
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}
	end = min(end, total-1)

	f.mu.Lock()
	seen := f.seen[start]
	f.seen[start]++
	f.mu.Unlock()

	var body io.Reader = bytes.NewReader(f.data[start : end+1])
	if f.cut != nil && rangeHeader != RangeHeader(0, 1) {
		if limit := f.cut(start, seen); limit >= 0 {
			body = io.MultiReader(io.LimitReader(body, limit), errReader{})
		}
	}
	if f.stall != nil && rangeHeader != RangeHeader(0, 1) {
		if limit := f.stall(start, seen); limit >= 0 {
			body = io.MultiReader(io.LimitReader(body, limit), ctxReader{ctx})
		}
	}
	return &Response{
		StatusCode: http.StatusPartialContent,
		Header:     http.Header{"Content-Range": []string{fmt.Sprintf("bytes %d-%d/%d", start, end, total)}},
		Body:       io.NopCloser(body),
	}, nil
}

func (f *fakeSource) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) {
	return 0, errInjected
}

// slowReader yields n single bytes, sleeping delay before each.
type slowReader struct {
	n     int
	delay time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.n == 0 {
		return 0, io.EOF
	}
	time.Sleep(s.delay)
	s.n--
	p[0] = 'x'
	return 1, nil
}

// ctxReader blocks until ctx is done.
type ctxReader struct {
	ctx context.Context
}

func (c ctxReader) Read(p []byte) (int, error) {
	<-c.ctx.Done()
	return 0, c.ctx.Err()
}

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	data := make([]byte, n)
	r.Read(data)
	return data
}

func testOptions(threads int) Options {
	opts := DefaultOptions()
	opts.Threads = threads
	opts.StatusInterval = 10 * time.Millisecond
	opts.RetryBackoff = time.Millisecond
	opts.BufferSize = 64
	return opts
}
