package slicescan

// matchOrder decides between several blocks that share a CRC and an MD5,
// which happens when a recovery set holds duplicate content.
type matchOrder uint8

const (
	// forwardOrder prefers, in turn: unseen blocks of the hinted file,
	// unseen blocks of other files, seen blocks of the hinted file, seen
	// blocks of other files. Unseen-first keeps duplicated blocks in their
	// original order as a scan moves forward.
	forwardOrder matchOrder = iota

	// backwardOrder ranks seen blocks of the hinted file above unseen blocks
	// of other files. A reversed pass starts from the file end, where an
	// identified file's own blocks are the most likely explanation.
	backwardOrder
)

// candidateMatch is the outcome of confirming index candidates. collision
// is set when the window's CRC matched some block but its MD5 matched none.
type candidateMatch struct {
	block     int
	collision bool
}

// choose confirms the CRC candidates cands against digest and returns the
// preferred block, or -1. digest is computed lazily through sum so windows
// without CRC candidates are never hashed.
func (fs *fileScan) choose(cands []uint32, sum func() Digest, order matchOrder) candidateMatch {
	res := candidateMatch{block: -1}
	if len(cands) == 0 {
		return res
	}
	digest := sum()
	blocks := fs.s.set.Blocks
	best := [4]int{-1, -1, -1, -1}
	for _, c := range cands {
		b := &blocks[c]
		if b.MD5 != digest {
			continue
		}
		own := fs.hint != NoFile && b.File == fs.hint
		if !fs.s.table.isSeen(int(c)) {
			if own {
				best[0] = int(c)
				break
			}
			if best[1] < 0 {
				best[1] = int(c)
			}
			if fs.hint == NoFile {
				break
			}
			continue
		}
		if own {
			best[2] = int(c)
		} else {
			best[3] = int(c)
		}
	}
	rank := [4]int{0, 1, 2, 3}
	if order == backwardOrder {
		rank = [4]int{0, 2, 1, 3}
	}
	for _, r := range rank {
		if best[r] >= 0 {
			res.block = best[r]
			return res
		}
	}
	res.collision = true
	return res
}

// noteCollision accounts for a CRC match rejected by MD5.
func (fs *fileScan) noteCollision() {
	fs.report.Collisions++
	fs.s.metrics.collision()
}

// blockReader reads aligned blocks for the simple and aligned modes,
// prefetching the block that follows the one just returned.
type blockReader struct {
	src  Source
	size int64
	rd   *chunkReader
	bufs [2][]byte
	cur  int

	// pendOff and pendLen describe the read in flight, if any.
	pendOff int64
	pendLen int

	metrics *Metrics
}

func (fs *fileScan) newBlockReader() *blockReader {
	bs := fs.s.set.BlockSize
	return &blockReader{
		src:     fs.src,
		size:    fs.size,
		rd:      startReader(fs.ctx, fs.src, fs.s.cfg.ReadAttempts),
		bufs:    [2][]byte{getBuf(bs), getBuf(bs)},
		metrics: fs.s.metrics,
	}
}

// read returns the n bytes at off. The slice stays valid until the next
// call. When forward is set the following n-byte block is prefetched.
func (r *blockReader) read(off int64, n int, forward bool) ([]byte, error) {
	var data []byte
	if r.rd.pending && r.pendOff == off && r.pendLen == n {
		if _, err := r.rd.wait(); err != nil {
			return nil, err
		}
		r.cur ^= 1
		data = r.bufs[r.cur][:n]
	} else {
		if r.rd.pending {
			r.rd.wait()
		}
		r.rd.request(off, r.bufs[r.cur][:n])
		if _, err := r.rd.wait(); err != nil {
			return nil, err
		}
		data = r.bufs[r.cur][:n]
	}
	r.metrics.scanned(n)

	next := off + int64(n)
	if forward && next < r.size {
		m := int(min(int64(len(r.bufs[0])), r.size-next))
		r.pendOff, r.pendLen = next, m
		r.rd.request(next, r.bufs[r.cur^1][:m])
	}
	return data, nil
}

func (r *blockReader) close() {
	r.rd.stop()
	putBuf(r.bufs[0])
	putBuf(r.bufs[1])
}
