package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_BitsetAllocExhaustion(t *testing.T) {
	b := New(3)

	for expected := range uint32(3) {
		idx, ok := b.Alloc()
		require.True(t, ok)
		assert.Equal(t, expected, idx)
	}

	_, ok := b.Alloc()
	assert.False(t, ok)
}

func Test_BitsetAllocReusesFreed(t *testing.T) {
	b := New(70)
	for range 70 {
		_, ok := b.Alloc()
		require.True(t, ok)
	}

	b.Remove(65)
	b.Remove(3)

	idx, ok := b.Alloc()
	require.True(t, ok)
	assert.Equal(t, uint32(3), idx)

	idx, ok = b.Alloc()
	require.True(t, ok)
	assert.Equal(t, uint32(65), idx)

	_, ok = b.Alloc()
	assert.False(t, ok)
}

func Test_BitsetGrow(t *testing.T) {
	b := New(64)
	for range 64 {
		_, ok := b.Alloc()
		require.True(t, ok)
	}

	require.NoError(t, b.Grow(200))
	assert.Equal(t, uint32(200), b.Size())

	for expected := uint32(64); expected < 200; expected++ {
		idx, ok := b.Alloc()
		require.True(t, ok)
		assert.Equal(t, expected, idx)
	}

	_, ok := b.Alloc()
	assert.False(t, ok)
}

func Test_BitsetGrowRejectsShrink(t *testing.T) {
	b := New(128)

	require.Error(t, b.Grow(64))
	assert.Equal(t, uint32(128), b.Size())
}

func Test_BitsetRemoveOutOfRange(t *testing.T) {
	b := New(10)

	assert.Panics(t, func() { b.Remove(10) })
}
