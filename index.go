package slicescan

import (
	"errors"
	"fmt"
	"slices"
)

const (
	minIndexBits = 4
	maxIndexBits = 24
)

var ErrEmptyRecoverySet = errors.New("recovery set has no blocks")

// tailEntry describes the short final block of one file.
type tailEntry struct {
	// block is the index of the short block.
	block uint32

	// crc is the raw CRC of the block content alone, with the zero padding
	// removed. A short block inside arbitrary data is only recognizable by
	// this value.
	crc uint32

	// small is set when the short block is the whole file.
	small bool
}

// Index supports exact lookup of blocks by raw CRC-32.
//
// Blocks are sorted by CRC. A jump table maps the top bits of a CRC to the
// first sorted position with that prefix, so a lookup costs one table read
// plus a scan over a handful of entries. The table width is chosen so each
// bucket holds about five to eight blocks.
//
// The struct is immutable after BuildIndex returns, therefore it is safe to
// share across sessions and goroutines without synchronization.
type Index struct {
	blockSize int

	// keys holds the sorted CRCs. order[i] is the block whose CRC is keys[i].
	keys  []uint32
	order []uint32

	// jump[p] is the first position in keys whose top bits equal p.
	jump  []uint32
	shift uint

	// tails lists the short final blocks in file order.
	tails []tailEntry

	// zeroMD5 is the digest of a block of zeros, shared by every all-zero
	// block regardless of its declared size.
	zeroMD5 Digest
}

// BuildIndex sorts the blocks of rs by CRC and builds the jump table.
//
// The function returns ErrEmptyRecoverySet when rs holds no blocks and any
// error reported by rs.Validate.
func BuildIndex(rs *RecoverySet) (*Index, error) {
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	n := len(rs.Blocks)
	if n == 0 {
		return nil, ErrEmptyRecoverySet
	}

	bits := uint(minIndexBits)
	for bits < maxIndexBits && 1<<(bits+3) < n {
		bits++
	}

	idx := &Index{
		blockSize: rs.BlockSize,
		keys:      make([]uint32, n),
		order:     make([]uint32, n),
		jump:      make([]uint32, 1<<bits+1),
		shift:     32 - bits,
		zeroMD5:   BlockMD5(nil, rs.BlockSize),
	}
	for i := range idx.order {
		idx.order[i] = uint32(i)
	}
	// Ties keep block order so collisions are reported lowest index first.
	slices.SortStableFunc(idx.order, func(a, b uint32) int {
		ca, cb := rs.Blocks[a].CRC, rs.Blocks[b].CRC
		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		return 0
	})
	for i, b := range idx.order {
		idx.keys[i] = rs.Blocks[b].CRC
	}

	// Fill the jump table back to front so empty prefixes point at the next
	// populated bucket.
	pos := n
	for p := len(idx.jump) - 1; p >= 0; p-- {
		for pos > 0 && uint64(idx.keys[pos-1]>>idx.shift) >= uint64(p) {
			pos--
		}
		idx.jump[p] = uint32(pos)
	}

	for i := range rs.Files {
		f := &rs.Files[i]
		last := f.LastBlock()
		if last < 0 || !rs.isShort(last) {
			continue
		}
		b := &rs.Blocks[last]
		idx.tails = append(idx.tails, tailEntry{
			block: uint32(last),
			crc:   reverseZero(b.CRC, rs.BlockSize-int(b.Size)),
			small: f.BlockCount == 1,
		})
	}
	return idx, nil
}

// BlockSize returns the block size the index was built for.
func (x *Index) BlockSize() int { return x.blockSize }

// Len returns the number of indexed blocks.
func (x *Index) Len() int { return len(x.keys) }

// Lookup returns every block whose raw CRC equals crc, lowest index first.
// The returned slice aliases the index and must not be modified. CRC
// equality is only advisory; callers confirm each candidate by MD5.
func (x *Index) Lookup(crc uint32) []uint32 {
	i := int(x.jump[crc>>x.shift])
	for i < len(x.keys) && x.keys[i] < crc {
		i++
	}
	j := i
	for j < len(x.keys) && x.keys[j] == crc {
		j++
	}
	return x.order[i:j]
}

// tailCRC returns the padding-free CRC of short block b.
func (x *Index) tailCRC(b int) (uint32, bool) {
	i, ok := slices.BinarySearchFunc(x.tails, uint32(b), func(e tailEntry, t uint32) int {
		switch {
		case e.block < t:
			return -1
		case e.block > t:
			return 1
		}
		return 0
	})
	if !ok {
		return 0, false
	}
	return x.tails[i].crc, true
}
