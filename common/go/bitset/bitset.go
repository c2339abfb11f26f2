package bitset

import (
	"fmt"
	"math/bits"
)

// Bitset is a growable set of small unsigned indices.
//
// The set has a logical size: only indices below it can be allocated. The
// size can only grow, which makes the bitset suitable as a free-slot
// allocator for index spaces that are published to lock-free readers.
//
// Bitset is not safe for concurrent use.
type Bitset struct {
	words []uint64
	size  uint32
}

// New constructs a new empty bitset able to hold indices in [0, size).
func New(size uint32) *Bitset {
	return &Bitset{
		words: make([]uint64, wordsFor(size)),
		size:  size,
	}
}

func wordsFor(size uint32) int {
	return int((uint64(size) + 63) / 64)
}

// Size returns the logical size of the bitset.
func (m *Bitset) Size() uint32 {
	return m.size
}

// Remove clears the given index.
func (m *Bitset) Remove(idx uint32) {
	if idx >= m.size {
		panic(fmt.Sprintf("index %d is too big: must be less than %d", idx, m.size))
	}

	m.words[idx/64] &^= 1 << (idx % 64)
}

// Alloc finds the lowest unset index, sets it and returns it.
//
// Returns false when every index below the logical size is taken.
func (m *Bitset) Alloc() (uint32, bool) {
	for idx, word := range m.words {
		free := ^word
		if free == 0 {
			continue
		}

		bit := uint32(idx)*64 + uint32(bits.TrailingZeros64(free))
		if bit >= m.size {
			return 0, false
		}

		m.words[idx] |= free & -free
		return bit, true
	}

	return 0, false
}

// Grow extends the logical size of the bitset, preserving all set bits.
//
// Shrinking is not supported: a smaller size results in an error and the
// bitset is left untouched.
func (m *Bitset) Grow(size uint32) error {
	if size < m.size {
		return fmt.Errorf("cannot shrink bitset from %d to %d", m.size, size)
	}

	if n := wordsFor(size); n > len(m.words) {
		words := make([]uint64, n)
		copy(words, m.words)
		m.words = words
	}
	m.size = size

	return nil
}
