package slicescan

import (
	"context"
	"fmt"
)

// window keeps two block lengths of a candidate in memory so that every
// full-width window starting in the first half is addressable, together
// with the byte that enters it on the next slide.
//
// buf[i] holds file byte base+i. Bytes past the end of the file read as
// zero. The next block length is prefetched into chunk by the background
// reader and moved into the upper half when the scan crosses into it.
type window struct {
	src  Source
	size int64
	bs   int

	buf   []byte
	chunk []byte
	base  int64
	next  int64

	rd      *chunkReader
	metrics *Metrics
}

// openWindow loads the two block lengths starting at start and prefetches
// the one after them.
func openWindow(ctx context.Context, src Source, bs int, start int64, attempts uint, m *Metrics) (*window, error) {
	w := &window{
		src:     src,
		size:    src.Size(),
		bs:      bs,
		buf:     getBuf(2 * bs),
		chunk:   getBuf(bs),
		base:    start,
		next:    start,
		rd:      startReader(ctx, src, attempts),
		metrics: m,
	}
	n := int(min(int64(2*bs), w.size-start))
	if n > 0 {
		w.rd.request(start, w.buf[:n])
		if _, err := w.rd.wait(); err != nil {
			w.close()
			return nil, fmt.Errorf("read %d bytes at %d: %w", n, start, err)
		}
		m.scanned(n)
		w.next += int64(n)
	}
	w.prefetch()
	return w, nil
}

func (w *window) prefetch() {
	if w.next >= w.size {
		return
	}
	n := int(min(int64(w.bs), w.size-w.next))
	w.rd.request(w.next, w.chunk[:n])
}

// shift drops the lower half and moves the prefetched chunk into the upper
// half.
func (w *window) shift() error {
	copy(w.buf, w.buf[w.bs:])
	clear(w.buf[w.bs:])
	w.base += int64(w.bs)
	if !w.rd.pending {
		return nil
	}
	n, err := w.rd.wait()
	if err != nil {
		return fmt.Errorf("read at %d: %w", w.next, err)
	}
	copy(w.buf[w.bs:], w.chunk[:n])
	w.metrics.scanned(n)
	w.next += int64(n)
	w.prefetch()
	return nil
}

// seek shifts until pos lies in the lower half.
func (w *window) seek(pos int64) error {
	for pos-w.base >= int64(w.bs) {
		if err := w.shift(); err != nil {
			return err
		}
	}
	return nil
}

// rel converts a file offset into a buffer offset. pos must be in the lower
// half.
func (w *window) rel(pos int64) int { return int(pos - w.base) }

// at returns the n bytes starting at file offset pos, n ≤ bs.
func (w *window) at(pos int64, n int) []byte {
	o := w.rel(pos)
	return w.buf[o : o+n]
}

// close stops the reader and recycles the buffers.
func (w *window) close() {
	w.rd.stop()
	putBuf(w.buf)
	putBuf(w.chunk)
	w.buf, w.chunk = nil, nil
}
