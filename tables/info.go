package tables

import (
	"fmt"
	"sync/atomic"
)

// InfoSlot is a single element of the flat hot-path descriptor array.
//
// A slot is either empty (table unlinked) or points to a fully initialized
// TableInfo; it is written only under the data lock.
type InfoSlot struct {
	ti atomic.Pointer[TableInfo]
}

// Load returns the currently published descriptor, or nil.
func (m *InfoSlot) Load() *TableInfo {
	return m.ti.Load()
}

// Store republishes the descriptor of a linked table.
//
// Algorithms tracking their slot call it from ApplyModify, with the data
// lock held.
func (m *InfoSlot) Store(ti *TableInfo) {
	if ti == nil || ti.Lookup == nil {
		panic("republishing incomplete table descriptor")
	}
	if m.ti.Load() == nil {
		panic("republishing descriptor of an unlinked table")
	}

	m.ti.Store(ti)
}

// infoArray is the flat descriptor array indexed by kidx.
//
// The registry swaps the whole array on resize, so the array a reader
// loaded stays valid for the duration of its lookup.
type infoArray struct {
	slots []InfoSlot
}

func newInfoArray(size uint32) *infoArray {
	return &infoArray{
		slots: make([]InfoSlot, size),
	}
}

// grown returns a copy of the array with the new size.
func (m *infoArray) grown(size uint32) *infoArray {
	out := newInfoArray(size)
	for idx := range m.slots {
		out.slots[idx].ti.Store(m.slots[idx].ti.Load())
	}

	return out
}

// publish links the descriptor into an empty slot.
//
// Must be called with the data lock held.
func (m *infoArray) publish(kidx TableID, ti *TableInfo) {
	slot := &m.slots[kidx]
	if prev := slot.ti.Load(); prev != nil {
		panic(fmt.Sprintf("table descriptor slot %d is already occupied", kidx))
	}

	slot.ti.Store(ti)
}

// replace swaps the descriptor of an occupied slot.
//
// Must be called with the data lock held.
func (m *infoArray) replace(kidx TableID, ti *TableInfo) {
	slot := &m.slots[kidx]
	if prev := slot.ti.Load(); prev == nil {
		panic(fmt.Sprintf("table descriptor slot %d is empty", kidx))
	}

	slot.ti.Store(ti)
}

// clear empties the slot.
//
// Must be called with the data lock held.
func (m *infoArray) clear(kidx TableID) {
	m.slots[kidx].ti.Store(nil)
}

// Lookup is the hot-path lookup.
//
// It takes no lock: it loads the current descriptor array, indexes it by
// kidx and calls the lookup function of whatever descriptor is published
// there. A miss is reported for unlinked or out of range indices.
func (m *Registry) Lookup(id TableID, key []byte) (Value, bool) {
	arr := m.infos.Load()
	if int(id) >= len(arr.slots) {
		return 0, false
	}

	ti := arr.slots[id].Load()
	if ti == nil {
		return 0, false
	}

	return ti.Lookup(ti.State, key)
}

// Descriptor returns the descriptor currently published at the given index.
//
// It is the lock-free read used by consumers that cache the descriptor for a
// batch of lookups.
func (m *Registry) Descriptor(id TableID) *TableInfo {
	arr := m.infos.Load()
	if int(id) >= len(arr.slots) {
		return nil
	}

	return arr.slots[id].Load()
}
