package tables_test

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanet-platform/yatable/tables"
	"github.com/yanet-platform/yatable/tables/algo"
)

func newRegistry(t *testing.T, options ...tables.RegistryOption) *tables.Registry {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	options = append([]tables.RegistryOption{tables.WithLog(logger.Sugar())}, options...)
	registry, err := tables.New(options...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, registry.Close())
	})

	return registry
}

func newDefaultRegistry(t *testing.T, options ...tables.RegistryOption) *tables.Registry {
	t.Helper()

	return newRegistry(t, append([]tables.RegistryOption{tables.WithAlgorithms(algo.Defaults()...)}, options...)...)
}

// fakeAlgo is a number table algorithm recording the pipeline calls.
//
// It is not safe for concurrent use.
type fakeAlgo struct {
	name        string
	prepareErr  error
	commitFlags tables.AdvisoryFlags

	prepares      int
	flushes       int
	modifyFlags   []tables.AdvisoryFlags
	applies       int
	modifyFlushes int
	destroyed     int
}

type fakeState struct {
	entries map[string]tables.Value
}

func (m *fakeAlgo) Name() string {
	return m.name
}

func (m *fakeAlgo) Type() tables.KeyType {
	return tables.KeyTypeNumber
}

func (m *fakeAlgo) Init(tables.InitArgs) (tables.AlgoState, *tables.TableInfo, error) {
	st := &fakeState{entries: map[string]tables.Value{}}
	lookup := func(s tables.AlgoState, key []byte) (tables.Value, bool) {
		v, ok := s.(*fakeState).entries[string(key)]
		return v, ok
	}

	return st, &tables.TableInfo{Lookup: lookup, State: st}, nil
}

func (m *fakeAlgo) Destroy(tables.AlgoState, *tables.TableInfo) {
	m.destroyed++
}

func (m *fakeAlgo) prepare(entry *tables.TEntry) (tables.Prepared, error) {
	m.prepares++
	if m.prepareErr != nil {
		return nil, m.prepareErr
	}

	return string(entry.Key), nil
}

func (m *fakeAlgo) PrepareAdd(entry *tables.TEntry) (tables.Prepared, error) {
	return m.prepare(entry)
}

func (m *fakeAlgo) PrepareDel(entry *tables.TEntry) (tables.Prepared, error) {
	return m.prepare(entry)
}

func (m *fakeAlgo) CommitAdd(s tables.AlgoState, _ *tables.TableInfo, entry *tables.TEntry, p tables.Prepared) (tables.CommitResult, error) {
	st := s.(*fakeState)
	key := p.(string)

	old, ok := st.entries[key]
	switch {
	case ok && entry.Flags&tables.EntryUpdate == 0:
		return tables.CommitResult{}, tables.ErrEntryExists
	case !ok && entry.Flags&tables.EntryDontAdd != 0:
		return tables.CommitResult{}, tables.ErrKeyNotPresent
	}

	st.entries[key] = entry.Value
	if ok {
		return tables.CommitResult{Updated: true, OldValue: old, Flags: m.commitFlags}, nil
	}
	return tables.CommitResult{Delta: 1, Flags: m.commitFlags}, nil
}

func (m *fakeAlgo) CommitDel(s tables.AlgoState, _ *tables.TableInfo, _ *tables.TEntry, p tables.Prepared) (tables.CommitResult, error) {
	st := s.(*fakeState)
	key := p.(string)

	old, ok := st.entries[key]
	if !ok {
		return tables.CommitResult{}, tables.ErrKeyNotPresent
	}
	delete(st.entries, key)

	return tables.CommitResult{Delta: -1, OldValue: old, Flags: m.commitFlags}, nil
}

func (m *fakeAlgo) FlushEntry(*tables.TEntry, tables.Prepared) {
	m.flushes++
}

func (m *fakeAlgo) ForEach(s tables.AlgoState, _ *tables.TableInfo, fn func(tables.Entry) bool) {
	st := s.(*fakeState)

	keys := make([]string, 0, len(st.entries))
	for key := range st.entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if !fn(tables.Entry{Key: []byte(key), Value: st.entries[key]}) {
			return
		}
	}
}

func (m *fakeAlgo) PrepareModify(flags tables.AdvisoryFlags) (tables.ModifyPlan, error) {
	m.modifyFlags = append(m.modifyFlags, flags)
	return flags, nil
}

func (m *fakeAlgo) FillModify(tables.AlgoState, *tables.TableInfo, tables.ModifyPlan) (bool, error) {
	return true, nil
}

func (m *fakeAlgo) ApplyModify(tables.AlgoState, *tables.TableInfo, tables.ModifyPlan) {
	m.applies++
}

func (m *fakeAlgo) FlushModify(tables.ModifyPlan) {
	m.modifyFlushes++
}

func (m *fakeAlgo) PrintConfig(tables.AlgoState, *tables.TableInfo) string {
	return m.name
}

func numberEntry(v uint32, value tables.Value, flags tables.EntryFlags) tables.TEntry {
	return tables.TEntry{Key: tables.NumberKey(v), Value: value, Flags: flags}
}

func TestFakeAlgoPipeline(t *testing.T) {
	t.Run("FlushEntryOnEveryPath", func(t *testing.T) {
		fake := &fakeAlgo{name: "number:fake"}
		registry := newRegistry(t, tables.WithAlgorithms(fake))

		id, err := registry.Create(tables.TableSpec{Name: "ports", Type: tables.KeyTypeNumber})
		require.NoError(t, err)

		_, err = registry.AddEntry(tables.ByID(id), numberEntry(80, 1, 0))
		require.NoError(t, err)
		_, err = registry.AddEntry(tables.ByID(id), numberEntry(80, 1, 0))
		require.ErrorIs(t, err, tables.ErrEntryExists)
		_, err = registry.DelEntry(tables.ByID(id), numberEntry(443, 0, 0))
		require.ErrorIs(t, err, tables.ErrKeyNotPresent)

		fake.prepareErr = fmt.Errorf("%w: no buffers", tables.ErrOutOfMemory)
		_, err = registry.AddEntry(tables.ByID(id), numberEntry(8080, 1, 0))
		require.ErrorIs(t, err, tables.ErrOutOfMemory)

		require.Equal(t, 4, fake.prepares)
		require.Equal(t, fake.prepares, fake.flushes)

		info, err := registry.Info(tables.ByID(id))
		require.NoError(t, err)
		require.Equal(t, uint32(1), info.Count)
		require.Zero(t, info.RefCount)
	})

	t.Run("DeferredModify", func(t *testing.T) {
		fake := &fakeAlgo{name: "number:fake", commitFlags: 0x2}
		registry := newRegistry(t, tables.WithAlgorithms(fake))

		id, err := registry.Create(tables.TableSpec{Name: "ports", Type: tables.KeyTypeNumber})
		require.NoError(t, err)

		_, err = registry.AddEntry(tables.ByID(id), numberEntry(80, 1, 0))
		require.NoError(t, err)
		require.Empty(t, fake.modifyFlags, "modify must be deferred to the next mutation")

		_, err = registry.DelEntry(tables.ByID(id), numberEntry(80, 0, 0))
		require.NoError(t, err)
		require.Equal(t, []tables.AdvisoryFlags{0x2}, fake.modifyFlags)
		require.Equal(t, 1, fake.applies)
		require.Equal(t, 1, fake.modifyFlushes)
	})

	t.Run("FindUnsupported", func(t *testing.T) {
		registry := newRegistry(t, tables.WithAlgorithms(&fakeAlgo{name: "number:fake"}))

		id, err := registry.Create(tables.TableSpec{Name: "ports", Type: tables.KeyTypeNumber})
		require.NoError(t, err)

		_, _, err = registry.FindEntry(tables.ByID(id), numberEntry(80, 0, 0))
		require.ErrorIs(t, err, tables.ErrUnsupported)
	})

	t.Run("DestroyOutsideLock", func(t *testing.T) {
		fake := &fakeAlgo{name: "number:fake"}
		registry := newRegistry(t, tables.WithAlgorithms(fake))

		id, err := registry.Create(tables.TableSpec{Name: "ports", Type: tables.KeyTypeNumber})
		require.NoError(t, err)
		require.NoError(t, registry.Flush(tables.ByID(id)))
		require.Equal(t, 1, fake.destroyed)
		require.NoError(t, registry.Destroy(tables.ByID(id)))
		require.Equal(t, 2, fake.destroyed)
	})
}

func TestAlgorithmRegistration(t *testing.T) {
	_, err := tables.New(tables.WithAlgorithms(&fakeAlgo{name: "number:fake"}, &fakeAlgo{name: "number:fake"}))
	require.Error(t, err)

	_, err = tables.New(tables.WithAlgorithms(&fakeAlgo{name: "number fake"}))
	require.Error(t, err)

	_, err = tables.New(tables.WithMaxTables(0))
	require.ErrorIs(t, err, tables.ErrInvalidArgument)

	registry := newRegistry(t, tables.WithAlgorithms(
		&fakeAlgo{name: "number:first"},
		&fakeAlgo{name: "number:second"},
	))

	_, err = registry.Create(tables.TableSpec{Name: "a", Type: tables.KeyTypeNumber})
	require.NoError(t, err)
	_, err = registry.Create(tables.TableSpec{Name: "b", Type: tables.KeyTypeNumber, Algorithm: "number:first"})
	require.NoError(t, err)

	require.Equal(t, []tables.AlgorithmInfo{
		{Name: "number:first", Type: tables.KeyTypeNumber, Default: true, RefCount: 2},
		{Name: "number:second", Type: tables.KeyTypeNumber},
	}, registry.ListAlgorithms())

	_, err = registry.Create(tables.TableSpec{Name: "c", Type: tables.KeyTypeAddr})
	require.ErrorIs(t, err, tables.ErrUnsupportedAlgorithm)
	_, err = registry.Create(tables.TableSpec{Name: "c", Type: tables.KeyTypeNumber, Algorithm: "number:third"})
	require.ErrorIs(t, err, tables.ErrUnsupportedAlgorithm)
}
