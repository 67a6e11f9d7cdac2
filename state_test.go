package slicescan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	t.Run("Updates Are Additive", func(t *testing.T) {
		tab := NewTable(4)
		assert.True(t, tab.mark(1, Discovery{State: FoundIntact}))
		assert.False(t, tab.mark(1, Discovery{State: FoundInDamagedFile}))
		assert.False(t, tab.mark(2, Discovery{State: NotFound}))

		assert.Equal(t, FoundIntact, tab.Get(1).State)
		assert.Equal(t, 1, tab.Available())
		assert.Equal(t, []int{0, 2, 3}, tab.Missing())
	})

	t.Run("Seen Resets Per File", func(t *testing.T) {
		tab := NewTable(3)
		tab.see(0)
		tab.see(2)
		tab.see(2)
		assert.True(t, tab.isSeen(2))
		assert.Len(t, tab.touched, 2)

		tab.beginFile()
		assert.False(t, tab.isSeen(0))
		assert.False(t, tab.isSeen(2))
		assert.Empty(t, tab.touched)
	})

	t.Run("Merge", func(t *testing.T) {
		a, b := NewTable(3), NewTable(3)
		a.mark(0, Discovery{State: FoundIntact})
		b.mark(0, Discovery{State: FoundInDamagedFile})
		b.mark(2, Discovery{State: Duplicate, Source: 0})

		assert.Equal(t, 1, a.Merge(b))
		assert.Equal(t, FoundIntact, a.Get(0).State, "first state recorded wins")
		assert.Equal(t, Discovery{State: Duplicate, Source: 0}, a.Get(2))
		assert.Equal(t, 2, a.Available())
	})

	t.Run("Snapshot Is A Copy", func(t *testing.T) {
		tab := NewTable(2)
		snap := tab.Snapshot()
		tab.mark(0, Discovery{State: AllZero})
		assert.Equal(t, NotFound, snap[0].State)
	})
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "not-found", NotFound.String())
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.False(t, NotFound.Available())
	assert.True(t, Reversible.Available())
	assert.True(t, FoundInDamagedFile.located())
	assert.False(t, AllZero.located())
}
