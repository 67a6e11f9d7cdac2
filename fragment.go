// fragment.go
//
// Reassembly of blocks split across two candidate files.
// When a file starts or ends in the middle of a block, the partial bytes on
// that side are kept as a fragment keyed by block index. Once both sides of
// the same block have been seen, possibly in different files and in either
// order, the two halves are joined and checked like any other window,
// including single-byte correction.
//
// Fragments live in a bounded LRU pool; when it is full the least recently
// touched fragment is evicted rather than refusing the new one.

package slicescan

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrResourceExhausted = errors.New("fragment pool could not be allocated")

// Side says which part of a block a fragment holds.
type Side uint8

const (
	// Front is the head of a block, found at the end of a file.
	Front Side = iota

	// Rear is the tail of a block, found at the start of a file.
	Rear
)

func (s Side) String() string {
	if s == Front {
		return "front"
	}
	return "rear"
}

// fragment holds the known parts of one block.
type fragment struct {
	// block is the index of the split block.
	block uint32

	// front holds block[0:len(front)] and rear holds
	// block[blockSize-len(rear):]. Either may be nil.
	front []byte
	rear  []byte
}

// fragmentPool is the bounded store of fragments owned by one session.
//
// It wraps an lru.Cache keyed by block index. The cache is internally
// synchronized, although a session only touches it from its foreground
// goroutine.
type fragmentPool struct {
	blockSize int
	entries   *lru.Cache[uint32, *fragment]

	evicted int
}

// fragmentCapacity sizes the pool. A block can be split at most once per
// file boundary, so no more than half of (blocks - files) fragments can be
// useful, and never more than the blocks still missing.
func fragmentCapacity(rs *RecoverySet, memBudget int64, missing int) int {
	byMem := memBudget / 2 / int64(rs.BlockSize)
	byTopology := int64(len(rs.Blocks)-len(rs.Files)) / 2
	return int(min(byMem, byTopology, int64(missing)))
}

// newFragmentPool allocates a pool for up to capacity fragments.
//
// ErrResourceExhausted is returned when capacity is not positive; the
// session then runs without fragment assembly.
func newFragmentPool(blockSize, capacity int) (*fragmentPool, error) {
	if capacity <= 0 {
		return nil, ErrResourceExhausted
	}
	cache, err := lru.New[uint32, *fragment](capacity)
	if err != nil {
		return nil, errors.Join(ErrResourceExhausted, err)
	}
	return &fragmentPool{blockSize: blockSize, entries: cache}, nil
}

// save stores one side of block b. data is copied. An existing fragment
// for the same block keeps its other side and has this side replaced.
func (p *fragmentPool) save(b uint32, side Side, data []byte) {
	if len(data) == 0 || len(data) >= p.blockSize {
		return
	}
	buf := append([]byte(nil), data...)
	f, ok := p.entries.Get(b)
	if !ok {
		f = &fragment{block: b}
	}
	if side == Front {
		f.front = buf
	} else {
		f.rear = buf
	}
	if p.entries.Add(b, f) {
		p.evicted++
	}
}

// assemble joins the two sides of f into a full block. ok is false while the
// sides leave more than one byte uncovered. A single uncovered byte is left
// zero for the corrector to fill in.
func (p *fragmentPool) assemble(f *fragment) (block []byte, ok bool) {
	if len(f.front)+len(f.rear) < p.blockSize-1 {
		return nil, false
	}
	block = make([]byte, p.blockSize)
	copy(block, f.front)
	copy(block[p.blockSize-len(f.rear):], f.rear)
	return block, true
}

// release drops the fragment of block b.
func (p *fragmentPool) release(b uint32) { p.entries.Remove(b) }

// len returns the number of stored fragments.
func (p *fragmentPool) len() int { return p.entries.Len() }

// keys returns the stored block indexes, oldest first.
func (p *fragmentPool) keys() []uint32 { return p.entries.Keys() }

// peek returns the fragment of block b without touching its recency.
func (p *fragmentPool) peek(b uint32) (*fragment, bool) { return p.entries.Peek(b) }
