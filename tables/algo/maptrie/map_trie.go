package maptrie

import (
	"sync/atomic"

	"github.com/llxisdsh/pb"
)

// MapTrieKey defines requirements for keys used in the MapTrie data structure.
//
// The type parameter T represents the concrete type implementing this
// interface.
type MapTrieKey[T any] interface {
	comparable
	// Masked returns a normalized version of the key with only significant
	// bits.
	Masked() T
	// Bits returns the number of significant bits in this key.
	Bits() int
}

// MapTrieQuery defines the interface for objects that can be used for querying
// the MapTrie.
type MapTrieQuery[K MapTrieKey[K]] interface {
	// BitLen returns the maximum number of significant bits in this query.
	BitLen() int
	// Prefix generates a key of the specified bit length from this query.
	Prefix(int) (K, error)
}

// maxLevels accommodates both IPv4 and IPv6 prefix lengths plus /0.
const maxLevels = 129

// MapTrie is a generic data structure with properties of a prefix trie but
// implemented using maps, one per prefix length.
//
// Readers never lock: levels are concurrent seqlock maps published through
// atomic pointers, and a nil level means no prefix of that length was ever
// stored. Writers must be serialized by the caller.
type MapTrie[K MapTrieKey[K], Q MapTrieQuery[K], V any] struct {
	levels [maxLevels]atomic.Pointer[pb.FlatMapOf[K, V]]
	cap    int
}

// NewMapTrie returns a new MapTrie data structure with the specified
// initial capacity per populated level.
func NewMapTrie[K MapTrieKey[K], Q MapTrieQuery[K], V any](cap int) *MapTrie[K, Q, V] {
	return &MapTrie[K, Q, V]{cap: cap}
}

func (m *MapTrie[K, Q, V]) level(bits int, create bool) *pb.FlatMapOf[K, V] {
	level := m.levels[bits].Load()
	if level == nil && create {
		level = pb.NewFlatMapOf[K, V](pb.WithPresize(m.cap))
		m.levels[bits].Store(level)
	}

	return level
}

// Lookup searches the MapTrie for a value that matches the longest
// possible prefix for the given query.
//
// If no match is found, the function returns the zero value and false.
func (m *MapTrie[K, Q, V]) Lookup(query Q) (K, V, bool) {
	for bits := query.BitLen(); bits >= 0; bits-- {
		level := m.levels[bits].Load()
		if level == nil {
			continue
		}

		prefix, _ := query.Prefix(bits)
		if value, ok := level.Load(prefix); ok {
			return prefix, value, true
		}
	}

	var zeroPrefix K
	var zeroValue V
	return zeroPrefix, zeroValue, false
}

// Load returns the value stored exactly under the prefix.
func (m *MapTrie[K, Q, V]) Load(prefix K) (V, bool) {
	prefix = prefix.Masked()

	if level := m.level(prefix.Bits(), false); level != nil {
		return level.Load(prefix)
	}

	var zeroValue V
	return zeroValue, false
}

// Update inserts or updates the value stored under the prefix.
//
// The update function receives the current value and whether it exists,
// and returns the new value and whether to store it.
func (m *MapTrie[K, Q, V]) Update(prefix K, update func(old V, loaded bool) (V, bool)) {
	prefix = prefix.Masked()
	level := m.level(prefix.Bits(), true)

	level.Process(prefix, func(old V, loaded bool) (V, pb.ComputeOp, V, bool) {
		value, ok := update(old, loaded)
		if !ok {
			return old, pb.CancelOp, old, loaded
		}
		return value, pb.UpdateOp, value, true
	})
}

// Delete removes the prefix, returning its value.
func (m *MapTrie[K, Q, V]) Delete(prefix K) (V, bool) {
	prefix = prefix.Masked()

	if level := m.level(prefix.Bits(), false); level != nil {
		return level.LoadAndDelete(prefix)
	}

	var zeroValue V
	return zeroValue, false
}

// Range calls fn for every stored prefix, from the longest to the shortest,
// until it returns false.
func (m *MapTrie[K, Q, V]) Range(fn func(K, V) bool) {
	for idx := len(m.levels) - 1; idx >= 0; idx-- {
		level := m.levels[idx].Load()
		if level == nil {
			continue
		}

		stop := false
		level.Range(func(prefix K, value V) bool {
			if !fn(prefix, value) {
				stop = true
			}
			return !stop
		})
		if stop {
			return
		}
	}
}
