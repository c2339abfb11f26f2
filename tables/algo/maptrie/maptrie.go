// Package maptrie implements the default longest-prefix-match algorithm for
// address tables.
package maptrie

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"github.com/yanet-platform/yatable/common/go/xnetip"
	"github.com/yanet-platform/yatable/tables"
)

// Name is the algorithm name.
const Name = "addr:maptrie"

const defaultLevelCap = 16

type trie = MapTrie[netip.Prefix, netip.Addr, tables.Value]

type state struct {
	trie *trie
	cap  int
}

type prepared struct {
	prefix netip.Prefix
}

var preparedPool = sync.Pool{
	New: func() any {
		return &prepared{}
	},
}

// Algorithm stores address prefixes in per-length maps and performs the
// longest prefix match probing lengths from the longest to the shortest.
type Algorithm struct{}

// New creates the algorithm.
func New() *Algorithm {
	return &Algorithm{}
}

func (m *Algorithm) Name() string {
	return Name
}

func (m *Algorithm) Type() tables.KeyType {
	return tables.KeyTypeAddr
}

// Init accepts an optional "cap=N" parameter, the initial capacity of each
// populated prefix length.
func (m *Algorithm) Init(args tables.InitArgs) (tables.AlgoState, *tables.TableInfo, error) {
	st := &state{cap: defaultLevelCap}

	for _, param := range args.Params() {
		key, value, _ := strings.Cut(param, "=")
		switch key {
		case "cap":
			v, err := strconv.ParseUint(value, 10, 31)
			if err != nil || v == 0 {
				return nil, nil, fmt.Errorf("%w: invalid capacity %q", tables.ErrInvalidArgument, value)
			}
			st.cap = int(v)
		default:
			return nil, nil, fmt.Errorf("%w: unknown parameter %q", tables.ErrInvalidArgument, param)
		}
	}
	st.trie = NewMapTrie[netip.Prefix, netip.Addr, tables.Value](st.cap)

	return st, &tables.TableInfo{Lookup: lookup, State: st}, nil
}

func lookup(s tables.AlgoState, key []byte) (tables.Value, bool) {
	addr, ok := netip.AddrFromSlice(key)
	if !ok {
		return 0, false
	}

	_, value, ok := s.(*state).trie.Lookup(addr.Unmap())
	return value, ok
}

// Destroy keeps the trie intact: lookups that loaded the descriptor before
// it was unlinked still read it, the garbage collector reclaims it after.
func (m *Algorithm) Destroy(tables.AlgoState, *tables.TableInfo) {}

func (m *Algorithm) prepare(entry *tables.TEntry) (tables.Prepared, error) {
	if err := tables.ValidateKey(tables.KeyTypeAddr, entry.Key, entry.MaskLen); err != nil {
		return nil, err
	}

	prefix, err := xnetip.PrefixFromKey(entry.Key, int(entry.MaskLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tables.ErrInvalidKey, err)
	}

	p := preparedPool.Get().(*prepared)
	p.prefix = prefix
	return p, nil
}

func (m *Algorithm) PrepareAdd(entry *tables.TEntry) (tables.Prepared, error) {
	return m.prepare(entry)
}

func (m *Algorithm) PrepareDel(entry *tables.TEntry) (tables.Prepared, error) {
	return m.prepare(entry)
}

func (m *Algorithm) CommitAdd(s tables.AlgoState, _ *tables.TableInfo, entry *tables.TEntry, p tables.Prepared) (tables.CommitResult, error) {
	st := s.(*state)
	prefix := p.(*prepared).prefix

	result := tables.CommitResult{}
	var err error
	st.trie.Update(prefix, func(old tables.Value, loaded bool) (tables.Value, bool) {
		switch {
		case loaded && entry.Flags&tables.EntryUpdate == 0:
			err = fmt.Errorf("%w: %s", tables.ErrEntryExists, prefix)
			return old, false
		case loaded:
			result.Updated = true
			result.OldValue = old
		case entry.Flags&tables.EntryDontAdd != 0:
			err = fmt.Errorf("%w: %s", tables.ErrKeyNotPresent, prefix)
			return old, false
		default:
			result.Delta = 1
		}
		return entry.Value, true
	})

	return result, err
}

func (m *Algorithm) CommitDel(s tables.AlgoState, _ *tables.TableInfo, _ *tables.TEntry, p tables.Prepared) (tables.CommitResult, error) {
	prefix := p.(*prepared).prefix

	old, ok := s.(*state).trie.Delete(prefix)
	if !ok {
		return tables.CommitResult{}, fmt.Errorf("%w: %s", tables.ErrKeyNotPresent, prefix)
	}

	return tables.CommitResult{Delta: -1, OldValue: old}, nil
}

func (m *Algorithm) FlushEntry(_ *tables.TEntry, p tables.Prepared) {
	if p, ok := p.(*prepared); ok {
		*p = prepared{}
		preparedPool.Put(p)
	}
}

func (m *Algorithm) ForEach(s tables.AlgoState, _ *tables.TableInfo, fn func(tables.Entry) bool) {
	s.(*state).trie.Range(func(prefix netip.Prefix, value tables.Value) bool {
		key, maskLen := tables.AddrKey(prefix)
		return fn(tables.Entry{Key: key, MaskLen: maskLen, Value: value})
	})
}

func (m *Algorithm) Find(s tables.AlgoState, _ *tables.TableInfo, entry *tables.TEntry) (tables.Entry, bool, error) {
	if err := tables.ValidateKey(tables.KeyTypeAddr, entry.Key, entry.MaskLen); err != nil {
		return tables.Entry{}, false, err
	}

	prefix, err := xnetip.PrefixFromKey(entry.Key, int(entry.MaskLen))
	if err != nil {
		return tables.Entry{}, false, fmt.Errorf("%w: %v", tables.ErrInvalidKey, err)
	}

	value, ok := s.(*state).trie.Load(prefix)
	if !ok {
		return tables.Entry{}, false, nil
	}

	key, maskLen := tables.AddrKey(prefix)
	return tables.Entry{Key: key, MaskLen: maskLen, Value: value}, true, nil
}

// The per-length maps grow on their own, so the modify protocol is a no-op.

func (m *Algorithm) PrepareModify(tables.AdvisoryFlags) (tables.ModifyPlan, error) {
	return nil, nil
}

func (m *Algorithm) FillModify(tables.AlgoState, *tables.TableInfo, tables.ModifyPlan) (bool, error) {
	return false, nil
}

func (m *Algorithm) ApplyModify(tables.AlgoState, *tables.TableInfo, tables.ModifyPlan) {}

func (m *Algorithm) FlushModify(tables.ModifyPlan) {}

func (m *Algorithm) PrintConfig(s tables.AlgoState, _ *tables.TableInfo) string {
	if st := s.(*state); st.cap != defaultLevelCap {
		return fmt.Sprintf("%s cap=%d", Name, st.cap)
	}

	return Name
}
