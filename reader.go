package slicescan

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
)

// readRequest asks the background reader to fill buf from off.
type readRequest struct {
	off int64
	buf []byte
}

type readResult struct {
	n   int
	err error
}

// chunkReader performs the read of the next chunk while the foreground
// goroutine hashes the current one.
//
// The two channels have capacity one and are used as a strict ping-pong:
// the foreground sends a request, later receives its result, and never
// sends again before that. At most one chunk is in flight, so the buffers
// need no further locking. Closing reqs tells the goroutine to exit; stop
// joins it.
type chunkReader struct {
	reqs    chan readRequest
	results chan readResult
	exited  chan struct{}

	pending bool
}

func startReader(ctx context.Context, src Source, attempts uint) *chunkReader {
	r := &chunkReader{
		reqs:    make(chan readRequest, 1),
		results: make(chan readResult, 1),
		exited:  make(chan struct{}),
	}
	go func() {
		defer close(r.exited)
		for req := range r.reqs {
			err := retry.Do(
				func() error { return readFull(src, req.buf, req.off) },
				retry.Attempts(attempts),
				retry.Delay(5*time.Millisecond),
				retry.DelayType(retry.BackOffDelay),
				retry.LastErrorOnly(true),
				// A short read means the file is shorter than it claimed;
				// retrying will not change that.
				retry.RetryIf(func(err error) bool {
					return !errors.Is(err, io.ErrUnexpectedEOF)
				}),
				retry.Context(ctx),
			)
			if err != nil {
				r.results <- readResult{err: err}
				continue
			}
			r.results <- readResult{n: len(req.buf)}
		}
	}()
	return r
}

// request starts reading into buf. It must not be called while another
// request is pending.
func (r *chunkReader) request(off int64, buf []byte) {
	r.pending = true
	r.reqs <- readRequest{off: off, buf: buf}
}

// wait blocks until the pending read completes.
func (r *chunkReader) wait() (int, error) {
	res := <-r.results
	r.pending = false
	return res.n, res.err
}

// stop poisons the request channel and joins the goroutine. A pending
// result is drained first so its buffer is no longer written to.
func (r *chunkReader) stop() {
	if r.pending {
		r.wait()
	}
	close(r.reqs)
	<-r.exited
}
