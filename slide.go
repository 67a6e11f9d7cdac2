package slicescan

import (
	"bytes"
	"time"
)

// shortProbe is a short final block expected at a given offset.
type shortProbe struct {
	block int
	off   int64
}

// slider is the state of one sliding pass over a candidate.
//
// pos is the start of the current window and crc its raw CRC. lastEnd is
// the furthest end of any hit so far; next is expected at nextOff.
type slider struct {
	fs  *fileScan
	w   *window
	tab *[256]uint32
	bs  int

	start int64
	pos   int64
	crc   uint32

	next    int
	nextOff int64
	shorts  [2]shortProbe
	lastEnd int64

	// fix holds a private copy of a window under repair.
	fix []byte

	// Guard state. fails collisions have been seen since failFrom; the
	// pass has been sliding without a hit since slidFrom. overlap counts
	// repeat hits inside earlier hits within block span overlapSpan.
	fails       int
	failFrom    int64
	slidFrom    time.Time
	overlap     int
	overlapSpan int64

	steps int
}

// scanSliding moves a window of one block length over every byte offset
// from start, looking each window's CRC up in the index. Predicted
// positions are checked first and may be repaired by the corrector. Bytes
// around the hits that cannot form a whole block are kept as fragments.
func (fs *fileScan) scanSliding(start int64) error {
	rs := fs.s.set
	bs := rs.BlockSize
	if start >= fs.size {
		return nil
	}
	w, err := openWindow(fs.ctx, fs.src, bs, start, fs.s.cfg.ReadAttempts, fs.s.metrics)
	if err != nil {
		return &FileError{Path: fs.path, Offset: start, Err: err}
	}
	defer w.close()

	sl := &slider{
		fs:       fs,
		w:        w,
		tab:      slideTable(bs),
		bs:       bs,
		start:    start,
		pos:      start,
		next:     -1,
		nextOff:  start,
		shorts:   [2]shortProbe{{block: -1}, {block: -1}},
		lastEnd:  start,
		fix:      getBuf(bs),
		slidFrom: time.Now(),
	}
	defer putBuf(sl.fix)
	sl.seedPredictions()

	if start == 0 {
		sl.probeHead()
	}
	err = sl.loop()
	fs.report.Windows += sl.steps
	if err != nil {
		return err
	}
	return sl.probeEnd()
}

// seedPredictions expects the hinted file's blocks at their own offsets
// and its short final block both at its natural offset and flush with the
// end of the candidate.
func (sl *slider) seedPredictions() {
	fs := sl.fs
	if fs.hint == NoFile {
		return
	}
	rs := fs.s.set
	f := &rs.Files[fs.hint]
	if f.BlockCount == 0 {
		return
	}
	k := int(sl.start / int64(sl.bs))
	if sl.start%int64(sl.bs) == 0 && k < f.BlockCount && !rs.isShort(f.FirstBlock+k) {
		sl.next = f.FirstBlock + k
	}
	last := f.LastBlock()
	if !rs.isShort(last) {
		return
	}
	size := int64(rs.Blocks[last].Size)
	sl.shorts[0] = shortProbe{block: last, off: f.Size - size}
	if fs.size != f.Size {
		sl.shorts[1] = shortProbe{block: last, off: fs.size - size}
	}
}

// probeHead checks the short final blocks against the first bytes of the
// candidate. Small files stored alone are found this way.
func (sl *slider) probeHead() {
	fs := sl.fs
	rs := fs.s.set
	for _, t := range fs.s.idx.tails {
		b := int(t.block)
		size := int(rs.Blocks[b].Size)
		if fs.s.table.isSeen(b) || int64(size) > fs.size {
			continue
		}
		data := sl.w.at(0, size)
		if crcUpdate(0, data) != t.crc {
			continue
		}
		if BlockMD5(data, sl.bs) != rs.Blocks[b].MD5 {
			fs.noteCollision()
			continue
		}
		fs.record(b, 0, MethodTail, data, nil)
	}
}

// loop slides the window until it would run past the end of the file.
func (sl *slider) loop() error {
	fs := sl.fs
	bs := int64(sl.bs)
	if sl.pos+bs > fs.size {
		return nil
	}
	sl.crc = RawCRC(sl.w.at(sl.pos, sl.bs))

	for sl.pos+bs <= fs.size {
		if sl.steps&0xFFF == 0 {
			if err := fs.tick(sl.pos); err != nil {
				return err
			}
		}
		sl.steps++

		b, method, content, corr := sl.match()
		if b < 0 {
			if err := sl.miss(); err != nil {
				return err
			}
			continue
		}
		if err := sl.hit(b, method, content, corr); err != nil {
			return err
		}
	}
	return nil
}

// match tests the current window: predicted short blocks, then the
// predicted full block with repair, then the whole index.
func (sl *slider) match() (int, Method, []byte, *Correction) {
	fs := sl.fs
	rs := fs.s.set

	for _, p := range sl.shorts {
		if p.block < 0 || p.off != sl.pos || fs.s.table.isSeen(p.block) {
			continue
		}
		size := int(rs.Blocks[p.block].Size)
		if m, content, corr, ok := sl.repair(p.block, sl.w.at(sl.pos, size)); ok {
			return p.block, m, content, corr
		}
	}

	data := sl.w.at(sl.pos, sl.bs)
	if sl.next >= 0 && sl.pos == sl.nextOff {
		blk := &rs.Blocks[sl.next]
		if sl.crc == blk.CRC {
			if BlockMD5(data, sl.bs) == blk.MD5 {
				return sl.next, MethodNext, data, nil
			}
			fs.noteCollision()
		} else if m, content, corr, ok := sl.repair(sl.next, data); ok {
			return sl.next, m, content, corr
		}
	}

	var digest *Digest
	sum := func() Digest {
		if digest == nil {
			v := BlockMD5(data, sl.bs)
			digest = &v
		}
		return *digest
	}
	m := fs.choose(fs.s.idx.Lookup(sl.crc), sum, forwardOrder)
	if m.collision {
		fs.noteCollision()
		sl.collided()
	}
	if m.block < 0 {
		return -1, 0, nil, nil
	}
	return m.block, MethodSearch, data, nil
}

// repair checks data against block b, allowing one damaged byte. The
// window buffer is left untouched; a repaired copy is returned instead.
func (sl *slider) repair(b int, data []byte) (Method, []byte, *Correction, bool) {
	fs := sl.fs
	blk := &fs.s.set.Blocks[b]
	want := blk.CRC
	if len(data) < sl.bs {
		t, ok := fs.s.idx.tailCRC(b)
		if !ok {
			return 0, nil, nil, false
		}
		want = t
	}
	got := sl.crc
	if len(data) < sl.bs {
		got = crcUpdate(0, data)
	}
	buf := sl.fix[:len(data)]
	copy(buf, data)
	corr, verdict := fs.s.fix.correct(buf, sl.bs, got, want, blk.MD5)
	switch verdict {
	case Intact:
		if len(data) < sl.bs {
			return MethodTail, data, nil, true
		}
		return MethodNext, data, nil, true
	case Corrected:
		return MethodCorrected, buf, &corr, true
	}
	return 0, nil, nil, false
}

// hit records block b at the current position and moves past it. A block
// already seen in this file is taken as a repeat and the window only
// slides by one byte, so an overlapping true match is not skipped. A repeat
// inside a run of one byte value skips the run up to the furthest hit end.
func (sl *slider) hit(b int, method Method, content []byte, corr *Correction) error {
	fs := sl.fs
	rs := fs.s.set
	size := int64(rs.Blocks[b].Size)
	pos := sl.pos
	repeat := fs.s.table.isSeen(b)

	sl.saveRear(b, pos)
	fs.record(b, pos, method, content, corr)
	sl.fails = 0
	sl.slidFrom = time.Now()

	next, tail, tailOff := fs.predict(b, pos)
	sl.next, sl.nextOff = next, pos+size
	if tail >= 0 {
		sl.shorts[0] = shortProbe{block: tail, off: tailOff}
	}

	if repeat {
		if pos < sl.lastEnd && sl.overlapped(pos) {
			sl.overlap = 0
			fs.report.OverlapSkips++
			return sl.jump(sl.lastEnd)
		}
		sl.lastEnd = max(sl.lastEnd, pos+size)
		before := sl.crc
		if err := sl.slide(); err != nil {
			return err
		}
		if sl.crc == before {
			return sl.skipRun(sl.lastEnd)
		}
		return nil
	}

	sl.overlap = 0
	sl.lastEnd = pos + size
	if err := sl.saveFront(b, pos+size); err != nil {
		return err
	}
	return sl.jump(pos + size)
}

// miss slides by one byte, skipping runs of identical windows and backing
// off from stretches that only produce collisions.
func (sl *slider) miss() error {
	before := sl.crc
	if err := sl.slide(); err != nil {
		return err
	}
	if sl.crc == before {
		if err := sl.skipRun(sl.fs.size - int64(sl.bs)); err != nil {
			return err
		}
	}
	return sl.guard()
}

// overlapped counts a repeat hit that starts inside an earlier hit and
// reports whether the overlap limit is reached. The limit grows with the
// offset inside the current block span and the count restarts with every
// span.
func (sl *slider) overlapped(pos int64) bool {
	cfg := sl.fs.s.cfg
	bs := int64(sl.bs)
	span, off := (pos-sl.start)/bs, (pos-sl.start)%bs
	if span != sl.overlapSpan {
		sl.overlap, sl.overlapSpan = 0, span
	}
	sl.overlap++
	return sl.overlap >= cfg.FailMax && int64(sl.overlap) >= off>>cfg.OverlapShift
}

// slide advances the window by one byte.
func (sl *slider) slide() error {
	if sl.pos+int64(sl.bs) >= sl.fs.size {
		sl.pos = sl.fs.size
		return nil
	}
	o := sl.w.rel(sl.pos)
	sl.crc = slideCRC(sl.crc, sl.tab, sl.w.buf[o], sl.w.buf[o+sl.bs])
	sl.pos++
	if err := sl.w.seek(sl.pos); err != nil {
		return &FileError{Path: sl.fs.path, Offset: sl.pos, Err: err}
	}
	return nil
}

// jump moves the window to pos and recomputes its CRC.
func (sl *slider) jump(pos int64) error {
	sl.pos = pos
	if pos+int64(sl.bs) > sl.fs.size {
		return nil
	}
	if err := sl.w.seek(pos); err != nil {
		return &FileError{Path: sl.fs.path, Offset: pos, Err: err}
	}
	sl.crc = RawCRC(sl.w.at(pos, sl.bs))
	return nil
}

// skipRun passes over a run of one repeated byte, stopping at limit at the
// latest. Every window inside the run has the same content, which has just
// been looked up. The skip stops short of any predicted position.
func (sl *slider) skipRun(limit int64) error {
	if sl.pos+int64(sl.bs) >= sl.fs.size {
		return nil
	}
	o := sl.w.rel(sl.pos)
	cur := sl.w.buf[o : o+sl.bs]
	if !bytes.Equal(cur[1:], sl.w.buf[o:o+sl.bs-1]) {
		return nil
	}
	stop := min(limit, sl.fs.size-int64(sl.bs))
	for _, p := range sl.shorts {
		if p.block >= 0 && p.off > sl.pos {
			stop = min(stop, p.off)
		}
	}
	if sl.next >= 0 && sl.nextOff > sl.pos {
		stop = min(stop, sl.nextOff)
	}
	for sl.pos < stop {
		o := sl.w.rel(sl.pos)
		if sl.w.buf[o] != sl.w.buf[o+sl.bs] {
			break
		}
		sl.pos++
		if err := sl.w.seek(sl.pos); err != nil {
			return &FileError{Path: sl.fs.path, Offset: sl.pos, Err: err}
		}
	}
	return nil
}

// collided counts a rejected CRC match towards the guard.
func (sl *slider) collided() {
	if sl.fails == 0 || sl.pos-sl.failFrom > int64(sl.fs.s.cfg.FailSpan) {
		sl.fails, sl.failFrom = 1, sl.pos
		return
	}
	sl.fails++
}

// guard leaves a stretch that keeps producing collisions. It resumes at the
// alignment the hinted file's blocks would have when counted from the end,
// or else at the next block boundary after the last hit.
func (sl *slider) guard() error {
	cfg := sl.fs.s.cfg
	if sl.fails < cfg.FailMax || time.Since(sl.slidFrom) < cfg.FailTime {
		return nil
	}
	bs := int64(sl.bs)
	target := sl.lastEnd
	if sl.pos >= sl.lastEnd {
		target += ((sl.pos-sl.lastEnd)/bs + 1) * bs
	}
	if rear, ok := sl.rearOffset(); ok && sl.pos < rear {
		target = rear
	}
	sl.fails = 0
	sl.slidFrom = time.Now()
	sl.fs.report.GuardSkips++
	sl.fs.s.metrics.guardSkip()
	sl.fs.s.log.Debug("collision guard skip", "path", sl.fs.path, "from", sl.pos, "to", target)
	return sl.jump(target)
}

// rearOffset is the first offset where the hinted file's blocks would
// start if the difference between expected and actual size lies entirely
// at the front of the candidate.
func (sl *slider) rearOffset() (int64, bool) {
	fs := sl.fs
	if fs.hint == NoFile {
		return 0, false
	}
	bs := int64(sl.bs)
	want := fs.s.set.Files[fs.hint].Size
	if fs.size >= want {
		return (fs.size - want) % bs, true
	}
	return (bs - (want-fs.size)%bs) % bs, true
}

// saveRear keeps the bytes before a hit near the start of the candidate as
// the tail of the preceding block. A first block is only worth keeping when
// a single byte of it is missing, since nothing can supply its head.
func (sl *slider) saveRear(b int, pos int64) {
	fs := sl.fs
	rs := fs.s.set
	if sl.start != 0 || sl.w.base != 0 || pos <= 1 || pos >= int64(sl.bs) {
		return
	}
	prev := b - 1
	if prev < 0 || rs.Blocks[prev].File != rs.Blocks[b].File {
		return
	}
	first := rs.Files[rs.Blocks[b].File].FirstBlock
	if prev > first || (prev == first && pos+1 == int64(sl.bs)) {
		fs.saveFragment(prev, Rear, sl.w.buf[:pos])
	}
}

// saveFront keeps the bytes after a hit at the end of the candidate as the
// head of the following block when they are too few to form it.
func (sl *slider) saveFront(b int, end int64) error {
	fs := sl.fs
	rs := fs.s.set
	bs := int64(sl.bs)
	if fs.s.frags == nil || end+bs-1 <= fs.size || end+1 >= fs.size {
		return nil
	}
	nb := b + 1
	if nb >= len(rs.Blocks) || rs.Blocks[nb].File != rs.Blocks[b].File || rs.isShort(nb) {
		return nil
	}
	if fs.s.table.Get(nb).State != NotFound {
		return nil
	}
	data := make([]byte, fs.size-end)
	if err := readFull(fs.src, data, end); err != nil {
		return &FileError{Path: fs.path, Offset: end, Err: err}
	}
	fs.saveFragment(nb, Front, data)
	return nil
}

// probeEnd looks for short final blocks in the bytes the sliding loop could
// not reach. Predicted blocks are searched at every offset of the last
// 2*bs-1 bytes; the other short blocks only flush with the end.
func (sl *slider) probeEnd() error {
	fs := sl.fs
	rs := fs.s.set
	from := max(sl.lastEnd, fs.size-int64(2*sl.bs-1), sl.start)
	if from >= fs.size {
		return nil
	}
	tail := make([]byte, fs.size-from)
	if err := readFull(fs.src, tail, from); err != nil {
		return &FileError{Path: fs.path, Offset: from, Err: err}
	}
	fs.s.metrics.scanned(len(tail))

	probed := map[int]bool{}
	for _, p := range sl.shorts {
		if p.block < 0 || probed[p.block] || fs.s.table.isSeen(p.block) {
			continue
		}
		probed[p.block] = true
		if err := fs.tick(from); err != nil {
			return err
		}
		sl.rollShort(p.block, tail, from)
	}
	if fs.hint != NoFile {
		return nil
	}
	for _, t := range fs.s.idx.tails {
		b := int(t.block)
		size := int(rs.Blocks[b].Size)
		if probed[b] || fs.s.table.isSeen(b) || size > len(tail) {
			continue
		}
		at := len(tail) - size
		if fs.isBlock(b, tail[at:]) {
			sl.saveRear(b, from+int64(at))
			fs.record(b, from+int64(at), MethodTail, tail[at:], nil)
		}
	}
	return nil
}

// rollShort slides a window of block b's length over tail, which starts at
// file offset from, and records the first match.
func (sl *slider) rollShort(b int, tail []byte, from int64) {
	fs := sl.fs
	size := int(fs.s.set.Blocks[b].Size)
	want, ok := fs.s.idx.tailCRC(b)
	if !ok || size > len(tail) {
		return
	}
	tab := slideTable(size)
	crc := RawCRC(tail[:size])
	for i := 0; ; i++ {
		if crc == want && fs.isBlock(b, tail[i:i+size]) {
			sl.saveRear(b, from+int64(i))
			fs.record(b, from+int64(i), MethodTail, tail[i:i+size], nil)
			return
		}
		if i+size >= len(tail) {
			return
		}
		crc = slideCRC(crc, tab, tail[i], tail[i+size])
	}
}
