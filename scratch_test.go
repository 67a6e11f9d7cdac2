package slicescan

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratch(t *testing.T) {
	const bs = 16
	a, b := makeData(1, 9*bs+5), makeData(2, 4*bs)
	rs := buildSet(t, bs, a, b)

	t.Run("Rebuilds Files From Damaged Candidates", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		s := newTestSession(t, rs, WithScratch(mem, "/out"))

		damaged := append([]byte(nil), a...)
		damaged[4*bs+2] ^= 0x10
		verifyBytes(t, s, "a", damaged, 0, ModeAuto)
		verifyBytes(t, s, "b", append(makeData(3, 6), b...), NoFile, ModeAuto)
		require.NoError(t, s.Close())

		got, err := afero.ReadFile(mem, "/out/file0.bin")
		require.NoError(t, err)
		assert.Equal(t, a, got)
		got, err = afero.ReadFile(mem, "/out/file1.bin")
		require.NoError(t, err)
		assert.Equal(t, b, got)
	})

	t.Run("Missing Blocks Leave Holes", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		s := newTestSession(t, rs, WithScratch(mem, "/out"))

		verifyBytes(t, s, "b", b[bs:], NoFile, ModeSliding)
		require.NoError(t, s.Close())

		got, err := afero.ReadFile(mem, "/out/file1.bin")
		require.NoError(t, err)
		assert.Equal(t, make([]byte, bs), got[:bs])
		assert.Equal(t, b[bs:], got[bs:])
	})

	t.Run("Write Failure Disables Output", func(t *testing.T) {
		ro := afero.NewReadOnlyFs(afero.NewMemMapFs())
		s := newTestSession(t, rs, WithScratch(ro, "/out"))

		rep := verifyBytes(t, s, "a", a, 0, ModeAuto)
		assert.Equal(t, rs.Files[0].BlockCount, rep.NewBlocks)
		assert.Nil(t, s.scratch)
		assert.Error(t, s.Close())
	})
}
