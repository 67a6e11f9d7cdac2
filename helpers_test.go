package slicescan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// makeData returns n pseudo-random bytes; the same seed gives the same bytes.
func makeData(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

// buildSet describes contents as consecutive files of a recovery set.
func buildSet(t testing.TB, bs int, contents ...[]byte) *RecoverySet {
	t.Helper()

	rs := &RecoverySet{BlockSize: bs}
	for i, c := range contents {
		f := FileRecord{
			ID:         FileID(i),
			Name:       fmt.Sprintf("file%d.bin", i),
			Size:       int64(len(c)),
			FirstBlock: len(rs.Blocks),
		}
		for off := 0; off < len(c); off += bs {
			end := min(off+bs, len(c))
			rs.Blocks = append(rs.Blocks, Block{
				Index: uint32(len(rs.Blocks)),
				File:  FileID(i),
				Size:  uint32(end - off),
				CRC:   BlockCRC(c[off:end], bs),
				MD5:   BlockMD5(c[off:end], bs),
			})
			f.BlockCount++
		}
		rs.Files = append(rs.Files, f)
	}
	require.NoError(t, rs.Validate())
	return rs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession opens a session with logging silenced and closes it when
// the test ends.
func newTestSession(t testing.TB, rs *RecoverySet, opts ...Option) *Session {
	t.Helper()

	s, err := NewSession(rs, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// verifyBytes runs one in-memory candidate through s.
func verifyBytes(t testing.TB, s *Session, name string, data []byte, id FileID, mode Mode) *FileReport {
	t.Helper()

	rep, err := s.VerifyFile(context.Background(), Candidate{
		Path:     name,
		Source:   BytesSource(data),
		Identity: id,
		Mode:     mode,
	})
	require.NoError(t, err)
	return rep
}

// fileBlocks returns the block indexes of file id.
func fileBlocks(rs *RecoverySet, id FileID) []int {
	f := &rs.Files[id]
	out := make([]int, 0, f.BlockCount)
	for i := f.FirstBlock; i < f.FirstBlock+f.BlockCount; i++ {
		out = append(out, i)
	}
	return out
}

// requireFound fails unless every listed block is available.
func requireFound(t testing.TB, tab *Table, blocks ...int) {
	t.Helper()
	for _, b := range blocks {
		require.Truef(t, tab.Get(b).State.Available(), "block %d should be available", b)
	}
}

// hitFor returns the hit of block b in rep.
func hitFor(rep *FileReport, b int) (Hit, bool) {
	for _, h := range rep.Hits {
		if int(h.Block) == b {
			return h, true
		}
	}
	return Hit{}, false
}

// collidingWindow returns a window different from x with the same raw CRC.
func collidingWindow(t testing.TB, x []byte) []byte {
	t.Helper()

	n := len(x)
	e := make([]byte, n)
	e[0] = 0x01
	r := RawCRC(e)
	// Cancel the first byte's contribution with the last four.
	fix, ok := invertShort(r, 4)
	require.True(t, ok)
	copy(e[n-4:], fix)
	require.Zero(t, RawCRC(e))

	y := append([]byte(nil), x...)
	for i := range y {
		y[i] ^= e[i]
	}
	return y
}

// failingSource returns an error for any read reaching past failAt.
type failingSource struct {
	data   []byte
	failAt int64
}

func (f failingSource) Size() int64 { return int64(len(f.data)) }

func (f failingSource) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > f.failAt {
		return 0, fmt.Errorf("simulated media error at %d", off)
	}
	return copy(p, f.data[off:]), nil
}
