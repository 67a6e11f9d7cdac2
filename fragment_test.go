package slicescan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentPool(t *testing.T) {
	t.Run("Assemble Either Order", func(t *testing.T) {
		block := makeData(1, 32)
		for _, frontFirst := range []bool{true, false} {
			p, err := newFragmentPool(32, 4)
			require.NoError(t, err)

			if frontFirst {
				p.save(7, Front, block[:12])
				p.save(7, Rear, block[12:])
			} else {
				p.save(7, Rear, block[12:])
				p.save(7, Front, block[:12])
			}
			f, ok := p.peek(7)
			require.True(t, ok)
			got, ok := p.assemble(f)
			require.True(t, ok)
			assert.Equal(t, block, got)
		}
	})

	t.Run("One Side Is Not Enough", func(t *testing.T) {
		p, err := newFragmentPool(32, 4)
		require.NoError(t, err)
		p.save(1, Front, make([]byte, 20))
		f, ok := p.peek(1)
		require.True(t, ok)
		_, ok = p.assemble(f)
		assert.False(t, ok)
	})

	t.Run("Single Byte Gap Left Zero", func(t *testing.T) {
		block := makeData(2, 16)
		p, err := newFragmentPool(16, 4)
		require.NoError(t, err)
		p.save(3, Front, block[:5])
		p.save(3, Rear, block[6:])
		f, _ := p.peek(3)
		got, ok := p.assemble(f)
		require.True(t, ok)
		assert.Zero(t, got[5])
		assert.Equal(t, block[:5], got[:5])
		assert.Equal(t, block[6:], got[6:])
	})

	t.Run("Data Is Copied", func(t *testing.T) {
		p, err := newFragmentPool(16, 4)
		require.NoError(t, err)
		buf := []byte{1, 2, 3}
		p.save(0, Front, buf)
		buf[0] = 9
		f, _ := p.peek(0)
		assert.Equal(t, []byte{1, 2, 3}, f.front)
	})

	t.Run("Ignores Empty And Whole Blocks", func(t *testing.T) {
		p, err := newFragmentPool(16, 4)
		require.NoError(t, err)
		p.save(0, Front, nil)
		p.save(1, Rear, make([]byte, 16))
		assert.Zero(t, p.len())
	})

	t.Run("Eviction", func(t *testing.T) {
		p, err := newFragmentPool(16, 2)
		require.NoError(t, err)
		p.save(1, Front, []byte{1})
		p.save(2, Front, []byte{2})
		p.save(3, Front, []byte{3})
		assert.Equal(t, 2, p.len())
		assert.Equal(t, 1, p.evicted)
		_, ok := p.peek(1)
		assert.False(t, ok, "oldest fragment should be evicted")
		assert.Equal(t, []uint32{2, 3}, p.keys())

		p.release(2)
		assert.Equal(t, []uint32{3}, p.keys())
	})

	t.Run("Zero Capacity", func(t *testing.T) {
		_, err := newFragmentPool(16, 0)
		assert.ErrorIs(t, err, ErrResourceExhausted)
	})
}

func TestFragmentCapacity(t *testing.T) {
	rs := buildSet(t, 16, makeData(1, 16*10), makeData(2, 16*4))

	// (14 blocks - 2 files) / 2
	assert.Equal(t, 6, fragmentCapacity(rs, 1<<30, 14))
	assert.Equal(t, 3, fragmentCapacity(rs, 1<<30, 3))
	assert.Equal(t, 2, fragmentCapacity(rs, 16*4, 14))
	assert.Zero(t, fragmentCapacity(rs, 16, 14))
}
