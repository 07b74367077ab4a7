package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrUnsupportedResource = errors.New("resource length unknown, unsupported")
	ErrTransport           = errors.New("transport error")
	ErrIO                  = errors.New("io error")
	ErrStateDecode         = errors.New("status file decode error")
	ErrAssemble            = errors.New("assemble error")
)

// ChunkError is the failure of a single chunk task.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// FetchError collects every chunk that failed during one download. The cache
// directory is left in place so a later run resumes the failed chunks.
type FetchError struct {
	Failed []*ChunkError
}

func newFetchError(failed []*ChunkError) *FetchError {
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].Index < failed[j].Index
	})
	return &FetchError{Failed: failed}
}

func (e *FetchError) Error() string {
	indices := make([]string, len(e.Failed))
	for i, ce := range e.Failed {
		indices[i] = fmt.Sprint(ce.Index)
	}
	msg := fmt.Sprintf("%d chunk(s) failed [%s]", len(e.Failed), strings.Join(indices, ", "))
	if len(e.Failed) > 0 {
		msg += ": " + e.Failed[0].Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, ce := range e.Failed {
		errs[i] = ce
	}
	return errs
}

// Indices returns the failed chunk indices in ascending order.
func (e *FetchError) Indices() []int {
	out := make([]int, len(e.Failed))
	for i, ce := range e.Failed {
		out[i] = ce.Index
	}
	return out
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
