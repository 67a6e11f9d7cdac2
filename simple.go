package slicescan

// scanSimple checks block-aligned offsets only. Each offset is compared
// with the predicted block first and then with the whole index. It gives up
// after a run of misses, then probes the short final block and, for an
// identified file, walks backwards from the file end so that a candidate
// with bytes missing or inserted near the front still has its rear blocks
// found.
func (fs *fileScan) scanSimple(start int64) error {
	rs := fs.s.set
	bs := rs.BlockSize
	if fs.hint == NoFile && fs.size < int64(bs) {
		return fs.matchWhole()
	}

	br := fs.newBlockReader()
	defer br.close()

	var (
		next     = -1 // predicted full block at off
		tail     = -1 // predicted short block at tailOff
		tailOff  int64
		lastSize = bs
		lastEnd  = start
		f        *FileRecord
	)
	if fs.hint != NoFile {
		f = &rs.Files[fs.hint]
		if f.BlockCount == 0 {
			return nil
		}
		last := f.LastBlock()
		lastSize = int(rs.Blocks[last].Size)
		next = f.FirstBlock + int(start/int64(bs))
		if next > last {
			next = -1
		}
		if lastSize < bs && start < f.Size {
			tail, tailOff = last, f.Size-int64(lastSize)
			if next == tail {
				next = -1
			}
		}
	}
	if fs.size < start+int64(min(lastSize, bs)) {
		return nil
	}

	missMax := max(fs.s.cfg.MissLimit, int((fs.size>>4)/int64(bs)))
	miss := 0
	off := start
	contiguous := true
	for off+int64(bs) <= fs.size {
		if err := fs.tick(off); err != nil {
			return err
		}
		found, method := -1, MethodAligned
		var data []byte

		if tail >= 0 && off == tailOff {
			n := int(rs.Blocks[tail].Size)
			d, err := br.read(off, n, false)
			if err != nil {
				return &FileError{Path: fs.path, Offset: off, Err: err}
			}
			if fs.isBlock(tail, d) {
				found, method, data = tail, MethodTail, d
			}
		}
		if found < 0 {
			d, err := br.read(off, bs, true)
			if err != nil {
				return &FileError{Path: fs.path, Offset: off, Err: err}
			}
			data = d
			crc := RawCRC(d)
			var digest *Digest
			sum := func() Digest {
				if digest == nil {
					v := BlockMD5(d, bs)
					digest = &v
				}
				return *digest
			}
			if next >= 0 && rs.Blocks[next].CRC == crc && rs.Blocks[next].MD5 == sum() {
				found, method = next, MethodNext
			} else {
				m := fs.choose(fs.s.idx.Lookup(crc), sum, forwardOrder)
				if m.collision {
					fs.noteCollision()
				}
				found = m.block
			}
		}

		if found < 0 {
			off += int64(bs)
			contiguous = false
			miss++
			if miss >= missMax {
				break
			}
			continue
		}
		size := int(rs.Blocks[found].Size)
		fs.record(found, off, method, data[:size], nil)
		next, tail, tailOff = fs.predict(found, off)
		off += int64(size)
		lastEnd = off
		if contiguous {
			fs.verified = off
		}
		miss = 0
	}

	// A predicted short block whose window would run past the end.
	if tail >= 0 && !fs.s.table.isSeen(tail) && tailOff+int64(rs.Blocks[tail].Size) <= fs.size {
		if err := fs.probeAt(br, tail, tailOff, MethodTail); err != nil {
			return err
		}
	}

	if f == nil || f.BlockCount < 2 {
		return nil
	}
	return fs.scanBackward(br, f, lastEnd, miss < missMax)
}

// predict derives the next expected positions after block found matched
// at off: the following block when it is full size, and the short final
// block of the same file at the offset it would have if nothing in between
// moved.
func (fs *fileScan) predict(found int, off int64) (next, tail int, tailOff int64) {
	rs := fs.s.set
	bs := int64(rs.BlockSize)
	nb := found + 1
	owner := rs.Blocks[found].File
	switch {
	case nb >= len(rs.Blocks) || rs.Blocks[nb].File != owner:
		return -1, -1, 0
	case rs.isShort(nb):
		return -1, nb, off + bs
	}
	last := rs.Files[owner].LastBlock()
	if rs.isShort(last) {
		return nb, last, off + int64(last-found)*bs
	}
	return nb, -1, 0
}

// isBlock reports whether data is exactly block b.
func (fs *fileScan) isBlock(b int, data []byte) bool {
	rs := fs.s.set
	blk := &rs.Blocks[b]
	if len(data) != int(blk.Size) || BlockCRC(data, rs.BlockSize) != blk.CRC {
		return false
	}
	if BlockMD5(data, rs.BlockSize) != blk.MD5 {
		fs.noteCollision()
		return false
	}
	return true
}

// probeAt reads block b's length at off and records it on a match.
func (fs *fileScan) probeAt(br *blockReader, b int, off int64, method Method) error {
	n := int(fs.s.set.Blocks[b].Size)
	d, err := br.read(off, n, false)
	if err != nil {
		return &FileError{Path: fs.path, Offset: off, Err: err}
	}
	if fs.isBlock(b, d) {
		fs.record(b, off, method, d, nil)
	}
	return nil
}

// scanBackward anchors at the end of the candidate and walks back one block
// at a time towards lastEnd, the end of the last forward hit.
func (fs *fileScan) scanBackward(br *blockReader, f *FileRecord, lastEnd int64, forwardClean bool) error {
	rs := fs.s.set
	bs := rs.BlockSize
	last := f.LastBlock()
	lastSize := int64(rs.Blocks[last].Size)

	// Realign the expected final block when the candidate is not longer
	// than that block plus one full block.
	if !fs.s.table.isSeen(last) && fs.size >= lastSize {
		var off int64
		switch {
		case fs.size >= f.Size:
			off = f.Size - lastSize
		case fs.size >= int64(bs)+lastSize:
			off = lastEnd
		}
		if off+lastSize <= fs.size {
			if err := fs.probeAt(br, last, off, MethodTail); err != nil {
				return err
			}
		}
	}

	if fs.size <= lastEnd+lastSize {
		return nil
	}
	// Same size and no early stop: nothing can be shifted.
	if forwardClean && fs.size == f.Size {
		return nil
	}

	off := fs.size - lastSize
	miss := 0
	if !fs.s.table.isSeen(last) {
		miss = 1
		if off >= lastEnd {
			if err := fs.probeAt(br, last, off, MethodTail); err != nil {
				return err
			}
			if fs.s.table.isSeen(last) {
				miss = 0
			}
		}
	}

	missMax := max(fs.s.cfg.MissLimit, int((fs.size>>4)/int64(bs)))
	next := last - 1
	for off -= int64(bs); off > lastEnd; off -= int64(bs) {
		if err := fs.tick(off); err != nil {
			return err
		}
		d, err := br.read(off, bs, false)
		if err != nil {
			return &FileError{Path: fs.path, Offset: off, Err: err}
		}
		crc := RawCRC(d)
		var digest *Digest
		sum := func() Digest {
			if digest == nil {
				v := BlockMD5(d, bs)
				digest = &v
			}
			return *digest
		}
		found := -1
		if next >= f.FirstBlock && rs.Blocks[next].CRC == crc && rs.Blocks[next].MD5 == sum() {
			found = next
		} else {
			m := fs.choose(fs.s.idx.Lookup(crc), sum, backwardOrder)
			if m.collision {
				fs.noteCollision()
			}
			found = m.block
		}
		if found < 0 {
			next = -1
			miss++
			if miss >= missMax {
				break
			}
			continue
		}
		fs.record(found, off, MethodAligned, d, nil)
		miss = 0
		next = found - 1
		if next < 0 || rs.Blocks[next].File != rs.Blocks[found].File {
			next = -1
		}
	}
	return nil
}

// matchWhole matches an unidentified candidate smaller than one block
// against every expected file of the same size by whole-content digest.
func (fs *fileScan) matchWhole() error {
	rs := fs.s.set
	if fs.size == 0 {
		return nil
	}
	var (
		data   []byte
		digest Digest
	)
	for i := range rs.Files {
		f := &rs.Files[i]
		if f.Size != fs.size || f.BlockCount != 1 {
			continue
		}
		if data == nil {
			data = make([]byte, fs.size)
			if err := readFull(fs.src, data, 0); err != nil {
				return &FileError{Path: fs.path, Err: err}
			}
			fs.s.metrics.scanned(len(data))
			digest = BlockMD5(data, rs.BlockSize)
		}
		b := f.FirstBlock
		if rs.Blocks[b].MD5 == digest && rs.Blocks[b].CRC == BlockCRC(data, rs.BlockSize) {
			fs.record(b, 0, MethodWhole, data, nil)
			return nil
		}
	}
	return nil
}
