package tables

import (
	"fmt"
	"sync/atomic"

	"github.com/yanet-platform/yatable/common/go/bitset"
)

// namedObject is the identity part of a table.
type namedObject struct {
	kidx TableID
	set  uint32
	name string
	typ  KeyType
	// refcnt counts external referrers: acquired references and in-flight
	// operations. A table cannot be destroyed while it is non-zero.
	refcnt atomic.Int32
}

type objectKey struct {
	set  uint32
	name string
}

// table is the per-table configuration (TableConfig).
//
// Every field below the identity is protected by the configuration lock.
type table struct {
	namedObject

	valueType ValueType
	flowMask  FlowMask
	algo      *algoEntry
	state     AlgoState
	ti        *TableInfo
	// gen is bumped every time state and ti are replaced by a flush or swap,
	// so that phases running off-lock can detect it.
	gen     uint64
	count   uint32
	limit   uint32
	pending AdvisoryFlags
	locked  bool
	linked  bool
}

func (m *table) summary() Summary {
	return Summary{
		ID:        m.kidx,
		Set:       m.set,
		Name:      m.name,
		Type:      m.typ,
		ValueType: m.valueType,
		FlowMask:  m.flowMask,
		Algorithm: m.algo.algo.Name(),
		Config:    m.algo.algo.PrintConfig(m.state, m.ti),
		Count:     m.count,
		Limit:     m.limit,
		RefCount:  m.refcnt.Load(),
		Locked:    m.locked,
	}
}

// namedObjects maps (set, name) and kidx to linked tables and allocates
// kidx values.
//
// Protected by the configuration lock.
type namedObjects struct {
	byName map[objectKey]*table
	byIdx  []*table
	free   *bitset.Bitset
}

func newNamedObjects(size uint32) *namedObjects {
	return &namedObjects{
		byName: map[objectKey]*table{},
		byIdx:  make([]*table, size),
		free:   bitset.New(size),
	}
}

// size returns the current table count ceiling.
func (m *namedObjects) size() uint32 {
	return m.free.Size()
}

func (m *namedObjects) count() int {
	return len(m.byName)
}

func (m *namedObjects) lookupByName(set uint32, name string) (*table, bool) {
	t, ok := m.byName[objectKey{set: set, name: name}]
	return t, ok
}

func (m *namedObjects) lookupByIdx(kidx TableID) (*table, bool) {
	if int(kidx) >= len(m.byIdx) {
		return nil, false
	}

	t := m.byIdx[kidx]
	return t, t != nil
}

// allocIdx reserves the lowest free kidx.
func (m *namedObjects) allocIdx() (TableID, error) {
	idx, ok := m.free.Alloc()
	if !ok {
		return 0, fmt.Errorf("%w: all %d indices are taken, raise the maximum number of tables",
			ErrOutOfIndices, m.free.Size())
	}

	return TableID(idx), nil
}

// freeIdx returns the kidx to the allocator.
//
// The table occupying it must be removed first.
func (m *namedObjects) freeIdx(kidx TableID) {
	if m.byIdx[kidx] != nil {
		panic(fmt.Sprintf("freeing index %d of a linked table", kidx))
	}

	m.free.Remove(uint32(kidx))
}

// insert links the table into the name and index maps.
func (m *namedObjects) insert(t *table) error {
	key := objectKey{set: t.set, name: t.name}
	if _, ok := m.byName[key]; ok {
		return fmt.Errorf("%w: %d/%s", ErrAlreadyExists, t.set, t.name)
	}

	m.byName[key] = t
	m.byIdx[t.kidx] = t
	return nil
}

// remove unlinks the table from the name and index maps.
func (m *namedObjects) remove(t *table) {
	delete(m.byName, objectKey{set: t.set, name: t.name})
	m.byIdx[t.kidx] = nil
}

// grow raises the table count ceiling.
func (m *namedObjects) grow(size uint32) error {
	if err := m.free.Grow(size); err != nil {
		return err
	}

	byIdx := make([]*table, size)
	copy(byIdx, m.byIdx)
	m.byIdx = byIdx

	return nil
}

// all calls fn for each linked table in kidx order.
func (m *namedObjects) all(fn func(*table) bool) {
	for _, t := range m.byIdx {
		if t == nil {
			continue
		}
		if !fn(t) {
			return
		}
	}
}
