package tables

import (
	"fmt"
	"strings"
)

// AlgoState is the algorithm-private per-table state.
type AlgoState any

// Prepared is the algorithm-private buffer produced by the prepare phase of
// an entry mutation and consumed by its commit phase.
type Prepared any

// ModifyPlan is the algorithm-private buffer of the four-phase modify
// protocol.
type ModifyPlan any

// AdvisoryFlags are left by a commit to ask the pipeline for a deferred
// resize or rehash before the next mutation.
//
// Non-zero value means "modify requested"; the bits are algorithm-defined.
// The flags of the latest commit that left any replace the pending ones.
type AdvisoryFlags uint64

// LookupFunc is the hot-path lookup function of an algorithm.
//
// It is called without any lock held, concurrently with every control-plane
// operation, so it must only read state that is safe for concurrent access.
type LookupFunc func(state AlgoState, key []byte) (Value, bool)

// TableInfo is the hot-path descriptor of a linked table.
//
// Once published it is never modified: the registry replaces the whole
// record instead, which makes every publish a single pointer store.
type TableInfo struct {
	Lookup LookupFunc
	// State is passed to Lookup. It may be a read-only view of the
	// algorithm state rather than the state itself.
	State AlgoState
}

// InitArgs are passed to Algorithm.Init.
type InitArgs struct {
	// Config is the full configuration string; its first word is the
	// algorithm name.
	//
	// On flush it is the output of PrintConfig of the old state.
	Config string
	// Type is the table key type.
	Type KeyType
	// FlowMask is the flow field mask of flow tables.
	FlowMask FlowMask
}

// Params returns the configuration words after the algorithm name.
func (m InitArgs) Params() []string {
	fields := strings.Fields(m.Config)
	if len(fields) == 0 {
		return nil
	}

	return fields[1:]
}

// CommitResult is reported by the commit phase of an entry mutation.
type CommitResult struct {
	// Delta is the change of the number of stored entries.
	Delta int
	// Flags are advisory flags for the next mutation.
	Flags AdvisoryFlags
	// Updated reports whether an existing entry value was replaced.
	Updated bool
	// OldValue is the previous value of an updated or deleted entry.
	OldValue Value
}

// Algorithm is a pluggable table storage strategy.
//
// Methods are called with the following locking:
//   - Init, Destroy, PrepareAdd, PrepareDel, FlushEntry, PrepareModify and
//     FlushModify: no lock held, may allocate.
//   - FillModify, Find, ForEach, PrintConfig: configuration lock held.
//   - CommitAdd, CommitDel, ApplyModify: configuration and data locks held;
//     must be bounded (O(1) or O(log n)).
type Algorithm interface {
	// Name returns the algorithm name, for example "addr:maptrie".
	Name() string
	// Type returns the key type the algorithm handles.
	Type() KeyType
	// Init allocates a new empty state.
	Init(args InitArgs) (AlgoState, *TableInfo, error)
	// Destroy releases the state.
	//
	// Lookups that loaded the descriptor before it was unlinked may still
	// run, so the state must remain safe to read.
	Destroy(state AlgoState, ti *TableInfo)
	// PrepareAdd validates the entry and allocates what CommitAdd needs.
	PrepareAdd(entry *TEntry) (Prepared, error)
	// PrepareDel validates the entry and allocates what CommitDel needs.
	PrepareDel(entry *TEntry) (Prepared, error)
	// CommitAdd inserts or updates the entry.
	//
	// Returns ErrEntryExists for an existing key without EntryUpdate and
	// ErrKeyNotPresent for a missing key with EntryDontAdd.
	CommitAdd(state AlgoState, ti *TableInfo, entry *TEntry, p Prepared) (CommitResult, error)
	// CommitDel removes the entry, returning ErrKeyNotPresent when missing.
	CommitDel(state AlgoState, ti *TableInfo, entry *TEntry, p Prepared) (CommitResult, error)
	// FlushEntry releases the prepared buffer. It is called on every path,
	// including failed prepares, in which case p is nil.
	FlushEntry(entry *TEntry, p Prepared)
	// ForEach enumerates all entries until fn returns false.
	ForEach(state AlgoState, ti *TableInfo, fn func(Entry) bool)
	// PrepareModify allocates a modify plan for the given advisory flags,
	// including any storage the rebuild needs.
	PrepareModify(flags AdvisoryFlags) (ModifyPlan, error)
	// FillModify fills the plan from the current state. It must not
	// allocate storage proportional to the table size.
	//
	// Returns false when no change is needed, ApplyModify is skipped then.
	FillModify(state AlgoState, ti *TableInfo, plan ModifyPlan) (bool, error)
	// ApplyModify switches the state to the filled plan.
	//
	// An algorithm implementing InfoSlotTracker may republish its
	// descriptor through the tracked slot here.
	ApplyModify(state AlgoState, ti *TableInfo, plan ModifyPlan)
	// FlushModify releases the plan.
	FlushModify(plan ModifyPlan)
	// PrintConfig returns the configuration string that Init accepts to
	// create an equivalent empty state.
	PrintConfig(state AlgoState, ti *TableInfo) string
}

// Finder is implemented by algorithms supporting single entry lookups for
// administrative requests.
type Finder interface {
	// Find returns the entry stored exactly under the given key.
	Find(state AlgoState, ti *TableInfo, entry *TEntry) (Entry, bool, error)
}

// InfoSlotTracker is implemented by algorithms that want to know where their
// descriptor is published.
//
// ChangeInfoSlot is called with the configuration and data locks held when
// the descriptor is linked, moved by a registry resize or swap, and with nil
// when it is unlinked.
type InfoSlotTracker interface {
	ChangeInfoSlot(state AlgoState, slot *InfoSlot)
}

type algoEntry struct {
	algo Algorithm
	// refcnt is the number of tables using the algorithm.
	//
	// Protected by the configuration lock.
	refcnt uint32
}

// algorithms is the immutable set of algorithms of a registry.
type algorithms struct {
	byName   map[string]*algoEntry
	defaults map[KeyType]*algoEntry
	order    []*algoEntry
}

func newAlgorithms(algos []Algorithm) (*algorithms, error) {
	m := &algorithms{
		byName:   map[string]*algoEntry{},
		defaults: map[KeyType]*algoEntry{},
	}

	for _, algo := range algos {
		name := algo.Name()
		if name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("invalid algorithm name %q", name)
		}
		if _, ok := m.byName[name]; ok {
			return nil, fmt.Errorf("algorithm %q is registered twice", name)
		}

		entry := &algoEntry{algo: algo}
		m.byName[name] = entry
		m.order = append(m.order, entry)

		// The first algorithm registered for a type is its default.
		if _, ok := m.defaults[algo.Type()]; !ok {
			m.defaults[algo.Type()] = entry
		}
	}

	return m, nil
}

// resolve selects the algorithm for the given key type and configuration
// string, returning the effective configuration.
func (m *algorithms) resolve(typ KeyType, config string) (*algoEntry, string, error) {
	fields := strings.Fields(config)
	if len(fields) == 0 {
		entry, ok := m.defaults[typ]
		if !ok {
			return nil, "", fmt.Errorf("%w: no default algorithm for type %s", ErrUnsupportedAlgorithm, typ)
		}

		return entry, entry.algo.Name(), nil
	}

	entry, ok := m.byName[fields[0]]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, fields[0])
	}
	if entry.algo.Type() != typ {
		return nil, "", fmt.Errorf("%w: %q handles %s keys, not %s",
			ErrUnsupportedAlgorithm, fields[0], entry.algo.Type(), typ)
	}

	return entry, strings.Join(fields, " "), nil
}

func (m *algorithms) info() []AlgorithmInfo {
	out := make([]AlgorithmInfo, 0, len(m.order))
	for _, entry := range m.order {
		out = append(out, AlgorithmInfo{
			Name:     entry.algo.Name(),
			Type:     entry.algo.Type(),
			Default:  m.defaults[entry.algo.Type()] == entry,
			RefCount: entry.refcnt,
		})
	}

	return out
}
