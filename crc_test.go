package slicescan

import (
	"hash/crc32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawCRC(t *testing.T) {
	t.Run("Matches IEEE After Conversion", func(t *testing.T) {
		for _, n := range []int{0, 1, 3, 4, 17, 4096, 70000} {
			data := makeData(int64(n), n)
			std := crc32.ChecksumIEEE(data)
			assert.Equal(t, RawCRC(data), RawFromIEEE(std, n), "length %d", n)
		}
	})

	t.Run("Zero Block Is Zero", func(t *testing.T) {
		assert.Zero(t, BlockCRC(nil, 4096))
		assert.Zero(t, BlockCRC(make([]byte, 17), 64))
		assert.Zero(t, crcZeros(0, 1<<17))
	})

	t.Run("Incremental Equals One Shot", func(t *testing.T) {
		data := makeData(7, 1000)
		crc := crcUpdate(0, data[:333])
		crc = crcUpdate(crc, data[333:])
		assert.Equal(t, RawCRC(data), crc)
	})

	t.Run("Block Padding", func(t *testing.T) {
		data := makeData(8, 100)
		padded := append(append([]byte(nil), data...), make([]byte, 28)...)
		assert.Equal(t, RawCRC(padded), BlockCRC(data, 128))
	})
}

func TestReverseZero(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 200 {
		crc := rng.Uint32()
		n := rng.Intn(5000)
		assert.Equal(t, crc, reverseZero(crcZeros(crc, n), n), "crc %08x n %d", crc, n)
	}

	t.Run("Strips Block Padding", func(t *testing.T) {
		data := makeData(2, 77)
		assert.Equal(t, RawCRC(data), reverseZero(BlockCRC(data, 128), 128-77))
	})
}

func TestSlideCRC(t *testing.T) {
	for _, n := range []int{1, 4, 16, 1000} {
		data := makeData(int64(n)+10, 3*n+50)
		tab := slideTable(n)
		crc := RawCRC(data[:n])
		for i := 0; i+n < len(data); i++ {
			crc = slideCRC(crc, tab, data[i], data[i+n])
			require.Equal(t, RawCRC(data[i+1:i+1+n]), crc, "window %d at %d", n, i+1)
		}
	}

	t.Run("Tables Are Shared", func(t *testing.T) {
		assert.Same(t, slideTable(64), slideTable(64))
	})
}

func TestInvertShort(t *testing.T) {
	for n := 1; n <= 4; n++ {
		content := makeData(int64(n), n)
		got, ok := invertShort(RawCRC(content), n)
		require.True(t, ok, "length %d", n)
		assert.Equal(t, content, got)
	}

	t.Run("Rejects Impossible Checksums", func(t *testing.T) {
		// One byte only reaches 256 checksums.
		misses := 0
		for crc := uint32(1); crc < 1000; crc++ {
			if _, ok := invertShort(crc*7919, 1); !ok {
				misses++
			}
		}
		assert.Greater(t, misses, 900)
	})

	t.Run("Out Of Range", func(t *testing.T) {
		_, ok := invertShort(0, 5)
		assert.False(t, ok)
		_, ok = invertShort(0, 0)
		assert.False(t, ok)
	})
}

func TestDigest(t *testing.T) {
	d := BlockMD5([]byte("abc"), 16)
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("abc")
	assert.Error(t, err)
	_, err = ParseDigest("zz" + d.String()[2:])
	assert.Error(t, err)

	assert.Equal(t, BlockMD5(nil, 16), BlockMD5(make([]byte, 5), 16))
}
