package slicescan

import (
	"encoding/binary"
	"fmt"

	"github.com/dgryski/go-farm"
	"github.com/hashicorp/golang-lru/arc/v2"
)

// memoChunk is the read size used to fingerprint candidates.
const memoChunk = 1 << 20

// memoKey identifies one candidate's content under one recovery set.
type memoKey struct {
	set  uint64
	path string
	size int64
	sum  uint64
}

// ResultMemo remembers the hits of verified candidates so that a candidate
// offered again with unchanged content is not scanned a second time.
//
// Entries are keyed by the recovery set, the candidate path and a farm
// fingerprint of the whole content, and evicted by an adaptive replacement
// cache. A ResultMemo is safe for concurrent use and may be shared by
// sessions running in parallel.
type ResultMemo struct {
	cache *arc.ARCCache[memoKey, []Hit]
}

// NewResultMemo returns a memo holding up to size candidates.
func NewResultMemo(size int) (*ResultMemo, error) {
	cache, err := arc.NewARC[memoKey, []Hit](size)
	if err != nil {
		return nil, fmt.Errorf("result memo: %w", err)
	}
	return &ResultMemo{cache: cache}, nil
}

// Len returns the number of memoized candidates.
func (m *ResultMemo) Len() int { return m.cache.Len() }

func (m *ResultMemo) key(set uint64, path string, src Source) (memoKey, error) {
	size := src.Size()
	buf := getBuf(int(min(size, memoChunk)))
	defer putBuf(buf)

	var sum uint64
	for off := int64(0); off < size; {
		n := int(min(int64(len(buf)), size-off))
		if err := readFull(src, buf[:n], off); err != nil {
			return memoKey{}, err
		}
		sum = farm.Hash64WithSeed(buf[:n], sum)
		off += int64(n)
	}
	return memoKey{set: set, path: path, size: size, sum: sum}, nil
}

func (m *ResultMemo) get(k memoKey) ([]Hit, bool) { return m.cache.Get(k) }

func (m *ResultMemo) put(k memoKey, hits []Hit) {
	m.cache.Add(k, append([]Hit(nil), hits...))
}

// setFingerprint condenses the checksums of rs so that memo entries of one
// recovery set are never replayed into another.
func setFingerprint(rs *RecoverySet) uint64 {
	buf := make([]byte, 0, 8+len(rs.Blocks)*(4+4+len(Digest{})))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rs.BlockSize))
	for i := range rs.Blocks {
		b := &rs.Blocks[i]
		buf = binary.LittleEndian.AppendUint32(buf, b.Size)
		buf = binary.LittleEndian.AppendUint32(buf, b.CRC)
		buf = append(buf, b.MD5[:]...)
	}
	return farm.Fingerprint64(buf)
}
