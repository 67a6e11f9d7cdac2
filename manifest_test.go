package slicescan

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	const bs = 64
	contents := map[string][]byte{
		"data/a.bin": makeData(1, 10*bs+17),
		"data/b.bin": makeData(2, 3*bs),
		"empty":      nil,
		"tiny.txt":   []byte("hi"),
	}
	names := []string{"data/a.bin", "empty", "tiny.txt", "data/b.bin"}
	mem := afero.NewMemMapFs()
	for name, c := range contents {
		require.NoError(t, afero.WriteFile(mem, name, c, 0o644))
	}

	t.Run("Matches Direct Checksums", func(t *testing.T) {
		rs, err := Describe(context.Background(), mem, names, bs)
		require.NoError(t, err)

		want := buildSet(t, bs, contents["data/a.bin"], nil, contents["tiny.txt"], contents["data/b.bin"])
		for i := range want.Files {
			want.Files[i].Name = names[i]
		}
		assert.Equal(t, want, rs)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := Describe(context.Background(), mem, []string{"data/a.bin", "nope"}, bs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope")
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := Describe(context.Background(), mem, []string{"data"}, bs)
		assert.Error(t, err)
	})

	t.Run("Bad Block Size", func(t *testing.T) {
		_, err := Describe(context.Background(), mem, names, 30)
		assert.ErrorIs(t, err, ErrInvalidBlockSize)
	})
}

func TestManifest(t *testing.T) {
	rs := buildSet(t, 32, makeData(1, 5*32+7), nil, makeData(2, 64))

	t.Run("Round Trip", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteManifest(&buf, rs))
		assert.Contains(t, buf.String(), "block_size: 32")

		got, err := ReadManifest(&buf)
		require.NoError(t, err)
		assert.Equal(t, rs, got)
	})

	t.Run("File Flags", func(t *testing.T) {
		flagged := buildSet(t, 32, makeData(3, 40), makeData(4, 8))
		flagged.Files[0].Flags = FileDamaged | FileAppended
		flagged.Files[1].Flags = FileMissing

		var buf bytes.Buffer
		require.NoError(t, WriteManifest(&buf, flagged))
		assert.Contains(t, buf.String(), "- damaged")
		assert.Contains(t, buf.String(), "- appended")

		got, err := ReadManifest(&buf)
		require.NoError(t, err)
		assert.Equal(t, flagged, got)
		assert.Equal(t, []string{"missing"}, got.Files[1].Flags.Names())
	})

	t.Run("Unknown Flag", func(t *testing.T) {
		doc := "block_size: 16\nfiles:\n  - name: a\n    size: 0\n    flags: [lost]\n"
		_, err := ReadManifest(strings.NewReader(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown file flag "lost"`)
	})

	t.Run("Bad CRC", func(t *testing.T) {
		doc := "block_size: 16\nfiles:\n  - name: a\n    size: 4\n    blocks:\n      - crc: xyz\n        md5: " +
			BlockMD5([]byte("abcd"), 16).String() + "\n"
		_, err := ReadManifest(strings.NewReader(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crc")
	})

	t.Run("Bad Digest", func(t *testing.T) {
		doc := "block_size: 16\nfiles:\n  - name: a\n    size: 4\n    blocks:\n      - crc: 0000abcd\n        md5: abcd\n"
		_, err := ReadManifest(strings.NewReader(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "md5")
	})

	t.Run("Block Count Mismatch", func(t *testing.T) {
		doc := "block_size: 16\nfiles:\n  - name: a\n    size: 40\n    blocks:\n      - crc: 0000abcd\n        md5: " +
			BlockMD5(nil, 16).String() + "\n"
		_, err := ReadManifest(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrBadBlockLayout)
	})

	t.Run("Bad Block Size", func(t *testing.T) {
		_, err := ReadManifest(strings.NewReader("block_size: 10\n"))
		assert.ErrorIs(t, err, ErrInvalidBlockSize)
	})

	t.Run("Not YAML", func(t *testing.T) {
		_, err := ReadManifest(strings.NewReader("{{{"))
		assert.Error(t, err)
	})
}
