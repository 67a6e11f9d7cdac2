package slicescan

import (
	"context"
	"time"
)

// fileScan carries the state of verifying one candidate.
type fileScan struct {
	s    *Session
	ctx  context.Context
	src  Source
	path string
	size int64

	// hint is the file the candidate is believed to be, or NoFile.
	hint FileID

	report *FileReport

	// verified is the end of the run of consecutive hits starting at the
	// scan start, as established by the simple mode.
	verified int64

	lastTick time.Time
	saved    bool
}

// run applies the candidate's policy, replaying the memo when possible.
func (fs *fileScan) run(c Candidate) (err error) {
	s := fs.s
	if s.memo != nil {
		key, kerr := s.memo.key(s.setKey, fs.path, fs.src)
		if kerr != nil {
			return &FileError{Path: fs.path, Err: kerr}
		}
		if hits, ok := s.memo.get(key); ok {
			return fs.replay(hits)
		}
		defer func() {
			if err == nil && !fs.saved {
				s.memo.put(key, fs.report.Hits)
			}
		}()
	}
	return fs.apply(c)
}

// tick polls for cancellation and calls the progress callback when the
// interval has elapsed.
func (fs *fileScan) tick(done int64) error {
	if err := fs.ctx.Err(); err != nil {
		return ErrCancelled
	}
	now := time.Now()
	if now.Sub(fs.lastTick) < fs.s.cfg.ProgressInterval {
		return nil
	}
	fs.lastTick = now
	if fs.s.progress == nil {
		return nil
	}
	if !fs.s.progress(Progress{
		Path:      fs.path,
		Done:      done,
		Size:      fs.size,
		Available: fs.s.table.Available(),
		Total:     fs.s.table.Len(),
	}) {
		return ErrCancelled
	}
	return nil
}

// record marks block b found at off. content is the block content as
// matched; it is copied into the hit only when it differs from the
// candidate bytes.
//
// A block is listed in the report at most once per candidate, but it is
// always marked seen so later matches of duplicate content prefer other
// blocks.
func (fs *fileScan) record(b int, off int64, method Method, content []byte, corr *Correction) {
	s := fs.s
	state := FoundIntact
	if corr != nil || method == MethodFragment {
		state = FoundInDamagedFile
	}
	isNew := s.table.mark(b, Discovery{State: state})
	if isNew {
		s.newBlocks++
		fs.report.NewBlocks++
		s.metrics.found(method)
		if corr != nil {
			s.metrics.corrected()
		}
		s.writeScratch(b, content)
	}
	if s.table.isSeen(b) {
		return
	}
	s.table.see(b)

	h := Hit{
		Block:      uint32(b),
		Candidate:  fs.path,
		Offset:     off,
		Method:     method,
		New:        isNew,
		Correction: corr,
	}
	if corr != nil || method == MethodFragment {
		h.Data = append([]byte(nil), content...)
	}
	fs.report.Hits = append(fs.report.Hits, h)
	s.log.Debug("block matched",
		"path", fs.path,
		"block", b,
		"offset", off,
		"method", method.String(),
		"new", isNew,
	)
	if s.onHit != nil {
		s.onHit(h)
	}
}

// replay applies memoized hits without scanning the candidate. Content is
// only read back when a scratch copy is being written.
func (fs *fileScan) replay(hits []Hit) error {
	s := fs.s
	fs.report.Memoized = true
	for _, h := range hits {
		state := FoundIntact
		if h.Correction != nil || h.Method == MethodFragment {
			state = FoundInDamagedFile
		}
		h.New = s.table.mark(int(h.Block), Discovery{State: state})
		if h.New {
			s.newBlocks++
			fs.report.NewBlocks++
			if s.scratch != nil {
				content := h.Data
				if content == nil {
					content = make([]byte, s.set.Blocks[h.Block].Size)
					if err := readFull(fs.src, content, h.Offset); err != nil {
						return &FileError{Path: fs.path, Offset: h.Offset, Err: err}
					}
				}
				s.writeScratch(int(h.Block), content)
			}
		}
		s.table.see(int(h.Block))
		fs.report.Hits = append(fs.report.Hits, h)
		if s.onHit != nil {
			s.onHit(h)
		}
	}
	return nil
}

// saveFragment stores one side of block b when it is still missing.
func (fs *fileScan) saveFragment(b int, side Side, data []byte) {
	s := fs.s
	if s.frags == nil || s.table.Get(b).State != NotFound {
		return
	}
	s.frags.save(uint32(b), side, data)
	fs.saved = true
	fs.report.FragmentsSaved++
	s.metrics.fragmentSaved()
	s.log.Debug("fragment saved", "path", fs.path, "block", b, "side", side.String(), "bytes", len(data))
}

// sweepFragments tries to complete every stored fragment. Fragments of
// blocks found meanwhile are released; joined blocks that verify are
// recorded and released; the rest stay for later candidates.
func (s *Session) sweepFragments(fs *fileScan) {
	if s.frags == nil {
		return
	}
	for _, b := range s.frags.keys() {
		f, ok := s.frags.peek(b)
		if !ok {
			continue
		}
		if s.table.Get(int(b)).State != NotFound {
			s.frags.release(b)
			continue
		}
		block, ok := s.frags.assemble(f)
		if !ok {
			continue
		}
		blk := &s.set.Blocks[b]
		crc := RawCRC(block)
		corr, verdict := s.fix.correct(block, s.set.BlockSize, crc, blk.CRC, blk.MD5)
		if verdict == Uncorrectable {
			s.log.Debug("fragments do not form block", "block", b)
			continue
		}
		var cp *Correction
		if verdict == Corrected {
			cp = &corr
		}
		s.metrics.fragmentJoined()
		fs.record(int(b), -1, MethodFragment, block, cp)
		s.frags.release(b)
	}
}
