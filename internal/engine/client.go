package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tanq16/chunkget/internal/utils"
)

// Response is what a RangeClient hands back for one GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// RangeClient issues a GET for url. An empty rangeHeader sends no Range header.
type RangeClient interface {
	Get(ctx context.Context, url string, rangeHeader string) (*Response, error)
}

// Doer is satisfied by *http.Client and utils.HTTPClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPRangeClient adapts a Doer to RangeClient.
type HTTPRangeClient struct {
	doer Doer
}

func NewHTTPRangeClient(doer Doer) *HTTPRangeClient {
	return &HTTPRangeClient{doer: doer}
}

func (c *HTTPRangeClient) Get(ctx context.Context, url string, rangeHeader string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// RangeHeader formats the Range header value for the half-open interval [start, end).
func RangeHeader(start, end int64) string {
	return fmt.Sprintf("bytes=%d-%d", start, end-1)
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end (inclusive), total bytes. Total is -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "bytes ") {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range unit: %q", header)
	}
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %q", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %q", header)
	}
	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		return start, end, -1, nil
	}
	total, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	return start, end, total, nil
}

// ProbeLength discovers the total length of url with a one-byte ranged request.
// It returns ErrUnsupportedResource when the response carries no usable total.
func ProbeLength(ctx context.Context, client RangeClient, url string) (int64, error) {
	log := utils.GetLogger("probe").With().Str("url", url).Logger()
	resp, err := client.Get(ctx, url, RangeHeader(0, 1))
	if err != nil {
		return 0, transportError("length probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	contentRange := resp.Header.Get("Content-Range")
	// 416 with "bytes */N" is how servers answer a range probe on an empty resource.
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && strings.HasPrefix(contentRange, "bytes */") {
		total, err := strconv.ParseInt(strings.TrimPrefix(contentRange, "bytes */"), 10, 64)
		if err == nil && total == 0 {
			return 0, nil
		}
	}
	if resp.StatusCode >= 400 {
		return 0, transportError("length probe", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	if contentRange == "" {
		log.Debug().Int("status", resp.StatusCode).Msg("Probe response has no Content-Range")
		return 0, ErrUnsupportedResource
	}
	_, _, total, err := ParseContentRange(contentRange)
	if err != nil || total < 0 {
		log.Debug().Str("contentRange", contentRange).Msg("Probe response has no usable total length")
		return 0, ErrUnsupportedResource
	}
	log.Debug().Int64("total", total).Msg("Resource length determined")
	return total, nil
}
