package slicescan

// FindCalculable marks the missing blocks whose content is known without
// reading any candidate: blocks of zeros, blocks of at most four bytes, whose
// content follows from the CRC, and blocks identical to a block already
// located. It returns the number of blocks marked.
//
// Every inference is confirmed against the block MD5.
func FindCalculable(rs *RecoverySet, idx *Index, t *Table) int {
	bs := rs.BlockSize
	n := 0
	for i := range rs.Blocks {
		if t.Get(i).State != NotFound {
			continue
		}
		blk := &rs.Blocks[i]

		if blk.CRC == 0 && blk.MD5 == idx.zeroMD5 {
			if t.mark(i, Discovery{State: AllZero}) {
				n++
			}
			continue
		}

		if blk.Size <= 4 {
			raw := reverseZero(blk.CRC, bs-int(blk.Size))
			if content, ok := invertShort(raw, int(blk.Size)); ok && BlockMD5(content, bs) == blk.MD5 {
				if t.mark(i, Discovery{State: Reversible}) {
					n++
				}
				continue
			}
		}

		for _, k := range idx.Lookup(blk.CRC) {
			other := &rs.Blocks[k]
			if int(k) == i || !t.Get(int(k)).State.located() {
				continue
			}
			if other.Size == blk.Size && other.MD5 == blk.MD5 {
				if t.mark(i, Discovery{State: Duplicate, Source: k}) {
					n++
				}
				break
			}
		}
	}
	return n
}
