package tables

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// AddEntry adds an entry to the table and returns the change of the entry
// count.
//
// The algorithm prepares the insertion without any lock held and commits it
// under both locks. A pending deferred resize of the table is run first.
func (m *Registry) AddEntry(sel Selector, entry TEntry) (int, error) {
	t, err := m.acquireForEntry(sel, &entry, true)
	if err != nil {
		return 0, err
	}
	defer m.release(t)

	for {
		m.modifyPending(t)

		delta, retry, err := m.addEntry(t, &entry)
		if !retry {
			return delta, err
		}
	}
}

// DelEntry removes an entry from the table and returns the change of the
// entry count.
func (m *Registry) DelEntry(sel Selector, entry TEntry) (int, error) {
	t, err := m.acquireForEntry(sel, &entry, false)
	if err != nil {
		return 0, err
	}
	defer m.release(t)

	for {
		m.modifyPending(t)

		delta, retry, err := m.delEntry(t, &entry)
		if !retry {
			return delta, err
		}
	}
}

// FindEntry returns the entry stored exactly under the given key.
func (m *Registry) FindEntry(sel Selector, entry TEntry) (Entry, bool, error) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	t, err := m.resolve(sel)
	if err != nil {
		return Entry{}, false, err
	}
	if err := checkEntry(t, &entry); err != nil {
		return Entry{}, false, err
	}

	finder, ok := t.algo.algo.(Finder)
	if !ok {
		return Entry{}, false, fmt.Errorf("%w: %q cannot find entries", ErrUnsupported, t.algo.algo.Name())
	}

	return finder.Find(t.state, t.ti, &entry)
}

// acquireForEntry resolves the table, validates the entry against it and
// pins the table for the duration of the mutation.
func (m *Registry) acquireForEntry(sel Selector, entry *TEntry, add bool) (*table, error) {
	m.cfgMu.RLock()
	t, err := m.resolve(sel)
	m.cfgMu.RUnlock()

	if err != nil && add && entry.Flags&EntryCompat != 0 && compatTableName(sel) {
		if err := m.createCompat(sel, entry.Type); err != nil {
			return nil, err
		}

		m.cfgMu.RLock()
		t, err = m.resolve(sel)
		m.cfgMu.RUnlock()
	}
	if err != nil {
		return nil, err
	}

	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	if !t.linked {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	if err := checkEntry(t, entry); err != nil {
		return nil, err
	}
	if t.locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, sel)
	}
	t.refcnt.Add(1)

	return t, nil
}

// checkEntry resolves the entry type and validates its key, masking the
// unused fields of flow keys.
func checkEntry(t *table, entry *TEntry) error {
	switch entry.Type {
	case KeyTypeInvalid:
		entry.Type = t.typ
	case t.typ:
	default:
		return fmt.Errorf("%w: %s entry for %s table %q", ErrTypeMismatch, entry.Type, t.typ, t.name)
	}

	if err := ValidateKey(entry.Type, entry.Key, entry.MaskLen); err != nil {
		return err
	}

	if entry.Type == KeyTypeFlow {
		entry.Key = append([]byte(nil), entry.Key...)
		MaskFlowKey(entry.Key, t.flowMask)
	}

	return nil
}

// createCompat creates a legacy numbered table on the first add.
func (m *Registry) createCompat(sel Selector, typ KeyType) error {
	if typ == KeyTypeInvalid {
		return fmt.Errorf("%w: entry type is required to create table %s", ErrInvalidArgument, sel)
	}

	_, err := m.Create(TableSpec{
		Name:      sel.Name,
		Set:       sel.Set,
		Type:      typ,
		ValueType: ValueTypeLegacy,
	})
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return fmt.Errorf("failed to create table %s: %w", sel, err)
	}

	return nil
}

func (m *Registry) addEntry(t *table, entry *TEntry) (int, bool, error) {
	m.cfgMu.RLock()
	algo, gen := t.algo.algo, t.gen
	m.cfgMu.RUnlock()

	prepared, err := algo.PrepareAdd(entry)
	defer algo.FlushEntry(entry, prepared)
	if err != nil {
		return 0, false, err
	}

	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if err := m.checkCommit(t); err != nil {
		return 0, false, err
	}
	if t.gen != gen {
		return 0, true, nil
	}

	e := *entry
	if t.limit != 0 && t.count >= t.limit {
		if e.Flags&EntryUpdate == 0 {
			return 0, false, fmt.Errorf("%w: table %q is limited to %d entries", ErrTooManyEntries, t.name, t.limit)
		}
		e.Flags |= EntryDontAdd
	}

	m.dataMu.Lock()
	result, err := algo.CommitAdd(t.state, t.ti, &e, prepared)
	m.dataMu.Unlock()

	if err != nil {
		if e.Flags&EntryDontAdd != 0 && errors.Is(err, ErrKeyNotPresent) {
			return 0, false, fmt.Errorf("%w: table %q is limited to %d entries", ErrTooManyEntries, t.name, t.limit)
		}
		return 0, false, err
	}

	m.account(t, result)
	return result.Delta, false, nil
}

func (m *Registry) delEntry(t *table, entry *TEntry) (int, bool, error) {
	m.cfgMu.RLock()
	algo, gen := t.algo.algo, t.gen
	m.cfgMu.RUnlock()

	prepared, err := algo.PrepareDel(entry)
	defer algo.FlushEntry(entry, prepared)
	if err != nil {
		return 0, false, err
	}

	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if err := m.checkCommit(t); err != nil {
		return 0, false, err
	}
	if t.gen != gen {
		return 0, true, nil
	}

	m.dataMu.Lock()
	result, err := algo.CommitDel(t.state, t.ti, entry, prepared)
	m.dataMu.Unlock()

	if err != nil {
		return 0, false, err
	}

	m.account(t, result)
	return result.Delta, false, nil
}

// checkCommit revalidates the table after the configuration lock was
// reacquired.
func (m *Registry) checkCommit(t *table) error {
	if !t.linked {
		return fmt.Errorf("%w: %d/%s", ErrNotFound, t.set, t.name)
	}
	if t.locked {
		return fmt.Errorf("%w: %d/%s", ErrLocked, t.set, t.name)
	}

	return nil
}

// account applies the commit result to the table bookkeeping.
//
// Must be called with the configuration lock held.
func (m *Registry) account(t *table, result CommitResult) {
	count := int64(t.count) + int64(result.Delta)
	if count < 0 {
		panic(fmt.Sprintf("table %d/%s entry count underflow: %d%+d", t.set, t.name, t.count, result.Delta))
	}

	t.count = uint32(count)
	if result.Flags != 0 {
		t.pending = result.Flags
	}
}

// modifyPending runs the four-phase modify protocol when a previous commit
// left advisory flags.
//
// Failures are not fatal for the mutation that triggered the modify: the
// flags stay pending and the next mutation tries again.
func (m *Registry) modifyPending(t *table) {
	m.cfgMu.RLock()
	flags, algo, gen := t.pending, t.algo.algo, t.gen
	m.cfgMu.RUnlock()

	if flags == 0 {
		return
	}

	plan, err := algo.PrepareModify(flags)
	defer algo.FlushModify(plan)
	if err != nil {
		m.log.Warnw("failed to prepare table modification",
			zap.String("name", t.name),
			zap.Uint64("flags", uint64(flags)),
			zap.Error(err),
		)
		return
	}

	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if !t.linked || t.gen != gen || t.pending == 0 {
		return
	}

	changed, err := algo.FillModify(t.state, t.ti, plan)
	if err != nil {
		m.log.Warnw("failed to fill table modification",
			zap.String("name", t.name),
			zap.Uint64("flags", uint64(flags)),
			zap.Error(err),
		)
		return
	}

	if changed {
		arr := m.infos.Load()
		m.dataMu.Lock()
		algo.ApplyModify(t.state, t.ti, plan)
		// The algorithm may have republished its descriptor.
		t.ti = arr.slots[t.kidx].Load()
		m.dataMu.Unlock()

		m.log.Debugw("modified table storage",
			zap.String("name", t.name),
			zap.Uint32("count", t.count),
		)
	}
	t.pending = 0
}
