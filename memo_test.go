package slicescan

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultMemo(t *testing.T) {
	const bs = 16
	orig := makeData(1, 30*bs+9)
	cand := append(makeData(2, 11), orig...)

	memo, err := NewResultMemo(8)
	require.NoError(t, err)

	rs := buildSet(t, bs, orig)
	first := newTestSession(t, rs, WithResultMemo(memo))
	rep := verifyBytes(t, first, "cand", cand, NoFile, ModeAuto)
	require.False(t, rep.Memoized)
	require.Equal(t, len(rs.Blocks), rep.NewBlocks)
	assert.Equal(t, 1, memo.Len())

	t.Run("Unchanged Candidate Is Replayed", func(t *testing.T) {
		s := newTestSession(t, rs, WithResultMemo(memo))
		again := verifyBytes(t, s, "cand", cand, NoFile, ModeAuto)

		assert.True(t, again.Memoized)
		assert.Empty(t, again.Modes)
		assert.Equal(t, len(rs.Blocks), again.NewBlocks)
		assert.Equal(t, first.Table().Snapshot(), s.Table().Snapshot())
		assert.Len(t, again.Hits, len(rep.Hits))
	})

	t.Run("Changed Content Is Scanned", func(t *testing.T) {
		s := newTestSession(t, rs, WithResultMemo(memo))
		edited := append([]byte(nil), cand...)
		edited[len(edited)-1] ^= 1

		again := verifyBytes(t, s, "cand", edited, NoFile, ModeAuto)
		assert.False(t, again.Memoized)
	})

	t.Run("Other Recovery Set Is Scanned", func(t *testing.T) {
		other := buildSet(t, bs, orig, makeData(3, bs))
		s := newTestSession(t, other, WithResultMemo(memo))

		again := verifyBytes(t, s, "cand", cand, NoFile, ModeAuto)
		assert.False(t, again.Memoized)
		requireFound(t, s.Table(), fileBlocks(other, 0)...)
	})

	t.Run("Replay Writes Scratch Output", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		s := newTestSession(t, rs, WithResultMemo(memo), WithScratch(mem, "/out"))

		again := verifyBytes(t, s, "cand", cand, NoFile, ModeAuto)
		require.True(t, again.Memoized)
		require.NoError(t, s.Close())

		got, err := afero.ReadFile(mem, "/out/file0.bin")
		require.NoError(t, err)
		assert.Equal(t, orig, got)
	})
}

func TestSetFingerprint(t *testing.T) {
	a := buildSet(t, 16, makeData(1, 100))
	b := buildSet(t, 16, makeData(1, 100))
	c := buildSet(t, 32, makeData(1, 100))

	assert.Equal(t, setFingerprint(a), setFingerprint(b))
	assert.NotEqual(t, setFingerprint(a), setFingerprint(c))
}
