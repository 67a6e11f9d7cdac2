package slicescan

// scanAligned compares each block of the identified file at its own offset
// and nothing else. It stops at the shorter of the expected and the actual
// size. A read error ends the candidate.
func (fs *fileScan) scanAligned(start int64) error {
	rs := fs.s.set
	bs := int64(rs.BlockSize)
	f := &rs.Files[fs.hint]

	br := fs.newBlockReader()
	defer br.close()

	limit := min(f.Size, fs.size)
	for k := int(start / bs); k < f.BlockCount; k++ {
		off := int64(k) * bs
		b := f.FirstBlock + k
		blk := &rs.Blocks[b]
		if off+int64(blk.Size) > limit {
			break
		}
		if err := fs.tick(off); err != nil {
			return err
		}
		data, err := br.read(off, int(blk.Size), true)
		if err != nil {
			return &FileError{Path: fs.path, Offset: off, Err: err}
		}
		if BlockCRC(data, rs.BlockSize) != blk.CRC {
			continue
		}
		if BlockMD5(data, rs.BlockSize) != blk.MD5 {
			fs.noteCollision()
			continue
		}
		fs.record(b, off, MethodAligned, data, nil)
	}
	return nil
}
