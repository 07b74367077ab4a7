package engine

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// idleReader cancels the request behind r when no bytes arrive for timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	if err != nil && err != io.EOF && ir.fired.Load() {
		err = fmt.Errorf("no data received for %s: %w", ir.timeout, err)
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
