package tables

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	// DefaultMaxTables is the default table count ceiling.
	DefaultMaxTables = 128
	// MaxTables is the largest table count ceiling the kidx space allows.
	MaxTables = 1 << 16
)

type options struct {
	Log        *zap.SugaredLogger
	MaxTables  uint32
	Algorithms []Algorithm
}

func newOptions() *options {
	return &options{
		Log:       zap.NewNop().Sugar(),
		MaxTables: DefaultMaxTables,
	}
}

// RegistryOption is a function that configures the Registry.
type RegistryOption func(*options)

// WithLog sets the logger for the Registry.
func WithLog(log *zap.SugaredLogger) RegistryOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithMaxTables sets the initial table count ceiling.
func WithMaxTables(n uint32) RegistryOption {
	return func(o *options) {
		o.MaxTables = n
	}
}

// WithAlgorithms registers table algorithms.
//
// The first algorithm registered for a key type becomes its default.
func WithAlgorithms(algos ...Algorithm) RegistryOption {
	return func(o *options) {
		o.Algorithms = append(o.Algorithms, algos...)
	}
}

// Registry is a set of named tables with a lock-free lookup path.
//
// Two locks guard it:
//   - the configuration lock (cfgMu) protects the name registry, the kidx
//     allocator and every table configuration;
//   - the data lock (dataMu) serializes writes to the descriptor array and
//     is held only for bounded algorithm commits.
//
// The data lock is always taken after the configuration lock. Lookups take
// neither.
type Registry struct {
	cfgMu   sync.RWMutex
	dataMu  sync.Mutex
	objects *namedObjects
	infos   atomic.Pointer[infoArray]
	algos   *algorithms
	closed  bool
	log     *zap.SugaredLogger
}

// New creates a new table registry.
func New(options ...RegistryOption) (*Registry, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	if opts.MaxTables == 0 || opts.MaxTables > MaxTables {
		return nil, fmt.Errorf("%w: maximum number of tables must be in [1, %d], got %d",
			ErrInvalidArgument, MaxTables, opts.MaxTables)
	}

	algos, err := newAlgorithms(opts.Algorithms)
	if err != nil {
		return nil, fmt.Errorf("failed to register algorithms: %w", err)
	}

	m := &Registry{
		objects: newNamedObjects(opts.MaxTables),
		algos:   algos,
		log:     opts.Log,
	}
	m.infos.Store(newInfoArray(opts.MaxTables))

	return m, nil
}

// Close destroys every table.
//
// Tables still referenced are destroyed too; their references keep working
// but every lookup through them misses.
func (m *Registry) Close() error {
	m.cfgMu.Lock()
	if m.closed {
		m.cfgMu.Unlock()
		return nil
	}
	m.closed = true

	doomed := []*table{}
	m.objects.all(func(t *table) bool {
		doomed = append(doomed, t)
		return true
	})
	for _, t := range doomed {
		if refcnt := t.refcnt.Load(); refcnt > 0 {
			m.log.Warnw("destroying referenced table on close",
				zap.String("name", t.name),
				zap.Uint32("set", t.set),
				zap.Int32("refcnt", refcnt),
			)
		}
		m.unlink(t)
	}
	m.cfgMu.Unlock()

	for _, t := range doomed {
		t.algo.algo.Destroy(t.state, t.ti)
	}

	m.log.Infow("closed table registry", zap.Int("destroyed", len(doomed)))
	return nil
}

// resolve finds a linked table.
//
// Must be called with the configuration lock held.
func (m *Registry) resolve(sel Selector) (*table, error) {
	var t *table
	var ok bool
	if sel.IsName() {
		t, ok = m.objects.lookupByName(sel.Set, sel.Name)
	} else {
		t, ok = m.objects.lookupByIdx(sel.ID)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}

	return t, nil
}

// link publishes the descriptor of a table with an already reserved kidx
// and inserts the table into the name registry.
//
// Must be called with the configuration lock held.
func (m *Registry) link(t *table) {
	arr := m.infos.Load()

	m.dataMu.Lock()
	arr.publish(t.kidx, t.ti)
	m.notifySlot(t, &arr.slots[t.kidx])
	m.dataMu.Unlock()

	if err := m.objects.insert(t); err != nil {
		panic(fmt.Sprintf("name registry diverged from the duplicate check: %v", err))
	}
	t.linked = true
	t.algo.refcnt++
}

// unlink removes the table from the name registry and the descriptor array
// and frees its kidx.
//
// Must be called with the configuration lock held.
func (m *Registry) unlink(t *table) {
	m.objects.remove(t)

	arr := m.infos.Load()
	m.dataMu.Lock()
	arr.clear(t.kidx)
	m.notifySlot(t, nil)
	m.dataMu.Unlock()

	m.objects.freeIdx(t.kidx)
	t.linked = false
	t.algo.refcnt--
}

// notifySlot tells the table algorithm where its descriptor lives now.
//
// Must be called with both locks held.
func (m *Registry) notifySlot(t *table, slot *InfoSlot) {
	if tracker, ok := t.algo.algo.(InfoSlotTracker); ok {
		tracker.ChangeInfoSlot(t.state, slot)
	}
}

// Create creates a new table and returns its kidx.
//
// The algorithm state is initialized without holding any lock, so the name
// is checked twice: once before the initialization and once again right
// before linking, when a racing creator may have linked the same name.
func (m *Registry) Create(spec TableSpec) (TableID, error) {
	if err := spec.validate(); err != nil {
		return 0, err
	}

	// Step 1: early duplicate check.
	m.cfgMu.RLock()
	closed := m.closed
	_, exists := m.objects.lookupByName(spec.Set, spec.Name)
	m.cfgMu.RUnlock()

	if closed {
		return 0, fmt.Errorf("%w: registry is closed", ErrInvalidOperation)
	}
	if exists {
		return 0, fmt.Errorf("%w: %d/%s", ErrAlreadyExists, spec.Set, spec.Name)
	}

	// Step 2: algorithm resolution. The algorithm set is immutable.
	entry, config, err := m.algos.resolve(spec.Type, spec.Algorithm)
	if err != nil {
		return 0, err
	}

	// Step 3: state allocation, off-lock.
	state, ti, err := m.initState(entry.algo, InitArgs{
		Config:   config,
		Type:     spec.Type,
		FlowMask: spec.FlowMask,
	})
	if err != nil {
		return 0, err
	}

	t := &table{
		namedObject: namedObject{
			set:  spec.Set,
			name: spec.Name,
			typ:  spec.Type,
		},
		valueType: spec.ValueType,
		flowMask:  spec.FlowMask,
		algo:      entry,
		state:     state,
		ti:        ti,
		limit:     spec.Limit,
	}

	// Step 4: recheck and link.
	kidx, err := m.linkNew(t)
	if err != nil {
		entry.algo.Destroy(state, ti)
		if CodeOf(err) == CodeAlreadyExists {
			m.log.Warnw("discarded state of a concurrently created table",
				zap.String("name", spec.Name),
				zap.Uint32("set", spec.Set),
			)
		}
		return 0, err
	}

	m.log.Infow("created table",
		zap.String("name", spec.Name),
		zap.Uint32("set", spec.Set),
		zap.Stringer("type", spec.Type),
		zap.Stringer("kidx", kidx),
		zap.String("algo", config),
		zap.Uint32("limit", spec.Limit),
	)

	return kidx, nil
}

func (m *Registry) linkNew(t *table) (TableID, error) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("%w: registry is closed", ErrInvalidOperation)
	}
	if _, ok := m.objects.lookupByName(t.set, t.name); ok {
		return 0, fmt.Errorf("%w: %d/%s", ErrAlreadyExists, t.set, t.name)
	}

	kidx, err := m.objects.allocIdx()
	if err != nil {
		return 0, err
	}
	t.kidx = kidx
	m.link(t)

	return kidx, nil
}

func (m *Registry) initState(algo Algorithm, args InitArgs) (AlgoState, *TableInfo, error) {
	state, ti, err := algo.Init(args)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize %q: %w", algo.Name(), err)
	}
	if ti == nil || ti.Lookup == nil {
		panic(fmt.Sprintf("algorithm %q returned incomplete table descriptor", algo.Name()))
	}

	return state, ti, nil
}

// Destroy destroys an unreferenced table.
func (m *Registry) Destroy(sel Selector) error {
	m.cfgMu.Lock()

	t, err := m.resolve(sel)
	if err != nil {
		m.cfgMu.Unlock()
		return err
	}
	if t.locked {
		m.cfgMu.Unlock()
		return fmt.Errorf("%w: %s", ErrLocked, sel)
	}
	if refcnt := t.refcnt.Load(); refcnt > 0 {
		m.cfgMu.Unlock()
		return fmt.Errorf("%w: %s has %d references", ErrBusy, sel, refcnt)
	}

	m.unlink(t)
	m.cfgMu.Unlock()

	t.algo.algo.Destroy(t.state, t.ti)

	m.log.Infow("destroyed table",
		zap.String("name", t.name),
		zap.Uint32("set", t.set),
		zap.Stringer("kidx", t.kidx),
	)

	return nil
}

// Flush removes every entry of the table.
//
// A new empty state is built from the printed configuration of the current
// one, published in a single swap and only then the old state is destroyed.
// Lookups therefore observe either the old or the new state, never a
// partially destroyed one.
func (m *Registry) Flush(sel Selector) error {
	for {
		done, err := m.flush(sel)
		if done || err != nil {
			return err
		}
	}
}

func (m *Registry) flush(sel Selector) (bool, error) {
	m.cfgMu.Lock()
	t, err := m.resolve(sel)
	if err != nil {
		m.cfgMu.Unlock()
		return false, err
	}
	if t.locked {
		m.cfgMu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrLocked, sel)
	}

	t.refcnt.Add(1)
	defer m.release(t)

	algo, oldState, oldTI, gen := t.algo.algo, t.state, t.ti, t.gen
	args := InitArgs{
		Config:   algo.PrintConfig(oldState, oldTI),
		Type:     t.typ,
		FlowMask: t.flowMask,
	}
	m.cfgMu.Unlock()

	state, ti, err := m.initState(algo, args)
	if err != nil {
		return false, err
	}

	m.cfgMu.Lock()
	if !t.linked {
		m.cfgMu.Unlock()
		algo.Destroy(state, ti)
		return false, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	if t.gen != gen {
		// Flushed or swapped concurrently: the prepared state may belong to
		// a different algorithm now.
		m.cfgMu.Unlock()
		algo.Destroy(state, ti)
		return false, nil
	}

	arr := m.infos.Load()
	m.dataMu.Lock()
	arr.replace(t.kidx, ti)
	m.notifySlot(t, nil)
	t.state, t.ti = state, ti
	m.notifySlot(t, &arr.slots[t.kidx])
	m.dataMu.Unlock()

	count := t.count
	t.count = 0
	t.pending = 0
	t.gen++
	m.cfgMu.Unlock()

	algo.Destroy(oldState, oldTI)

	m.log.Infow("flushed table",
		zap.String("name", t.name),
		zap.Uint32("set", t.set),
		zap.Uint32("removed", count),
	)

	return true, nil
}

// Swap atomically exchanges the contents of two tables.
//
// Names, kidx, limits and references stay in place, so consumers pinned to
// either table observe the other table's entries from the next lookup on.
func (m *Registry) Swap(a, b Selector) error {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	ta, err := m.resolve(a)
	if err != nil {
		return err
	}
	tb, err := m.resolve(b)
	if err != nil {
		return err
	}

	if ta == tb {
		return fmt.Errorf("%w: cannot swap table %s with itself", ErrInvalidOperation, a)
	}
	if ta.typ != tb.typ || ta.valueType != tb.valueType || ta.flowMask != tb.flowMask {
		return fmt.Errorf("%w: %s is %s/%s, %s is %s/%s", ErrTypeMismatch,
			a, ta.typ, ta.valueType, b, tb.typ, tb.valueType)
	}
	if ta.locked || tb.locked {
		return fmt.Errorf("%w: cannot swap locked tables", ErrLocked)
	}
	if (ta.limit != 0 && tb.count > ta.limit) || (tb.limit != 0 && ta.count > tb.limit) {
		return fmt.Errorf("%w: swapped contents exceed table limit", ErrTooManyEntries)
	}

	arr := m.infos.Load()
	m.dataMu.Lock()
	arr.replace(ta.kidx, tb.ti)
	arr.replace(tb.kidx, ta.ti)

	ta.algo.refcnt--
	tb.algo.refcnt--
	ta.algo, tb.algo = tb.algo, ta.algo
	ta.state, tb.state = tb.state, ta.state
	ta.ti, tb.ti = tb.ti, ta.ti
	ta.algo.refcnt++
	tb.algo.refcnt++

	m.notifySlot(ta, &arr.slots[ta.kidx])
	m.notifySlot(tb, &arr.slots[tb.kidx])
	m.dataMu.Unlock()

	ta.count, tb.count = tb.count, ta.count
	ta.pending, tb.pending = tb.pending, ta.pending
	ta.gen++
	tb.gen++

	m.log.Infow("swapped tables",
		zap.String("a", ta.name),
		zap.String("b", tb.name),
	)

	return nil
}

// Modify changes the mutable parameters of a table.
func (m *Registry) Modify(sel Selector, update TableUpdate) error {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	t, err := m.resolve(sel)
	if err != nil {
		return err
	}

	if update.Limit != nil {
		t.limit = *update.Limit
	}
	if update.Locked != nil {
		t.locked = *update.Locked
	}

	m.log.Infow("modified table",
		zap.String("name", t.name),
		zap.Uint32("set", t.set),
		zap.Uint32("limit", t.limit),
		zap.Bool("locked", t.locked),
	)

	return nil
}

// Resize raises the table count ceiling.
//
// The descriptor array is copied without the data lock and published with
// a single pointer swap. Shrinking is rejected: nothing proves that no
// lookup still reads a slot that would be removed.
func (m *Registry) Resize(size uint32) error {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	current := m.objects.size()
	switch {
	case size < current:
		return fmt.Errorf("%w: cannot shrink table registry from %d to %d", ErrInvalidOperation, current, size)
	case size > MaxTables:
		return fmt.Errorf("%w: table registry size %d exceeds %d", ErrInvalidOperation, size, MaxTables)
	case size == current:
		return nil
	}

	arr := m.infos.Load().grown(size)
	if err := m.objects.grow(size); err != nil {
		return fmt.Errorf("failed to grow index allocator: %w", err)
	}

	m.dataMu.Lock()
	m.infos.Store(arr)
	m.objects.all(func(t *table) bool {
		m.notifySlot(t, &arr.slots[t.kidx])
		return true
	})
	m.dataMu.Unlock()

	m.log.Infow("resized table registry",
		zap.Uint32("from", current),
		zap.Uint32("to", size),
	)

	return nil
}

// Size returns the current table count ceiling.
func (m *Registry) Size() uint32 {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	return m.objects.size()
}

// release drops a reference taken by an operation or a TableRef.
func (m *Registry) release(t *table) {
	if t.refcnt.Add(-1) < 0 {
		panic(fmt.Sprintf("table %d/%s reference count underflow", t.set, t.name))
	}
}

// TableRef pins a table: while it is held the table cannot be destroyed.
//
// It is what classification rules hold for the tables they reference.
type TableRef struct {
	registry *Registry
	table    *table
	once     sync.Once
}

// Acquire returns a reference to the table.
func (m *Registry) Acquire(sel Selector) (*TableRef, error) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	t, err := m.resolve(sel)
	if err != nil {
		return nil, err
	}
	t.refcnt.Add(1)

	return &TableRef{registry: m, table: t}, nil
}

// ID returns the kidx of the referenced table.
func (m *TableRef) ID() TableID {
	return m.table.kidx
}

// Lookup performs the hot-path lookup on the referenced table.
func (m *TableRef) Lookup(key []byte) (Value, bool) {
	return m.registry.Lookup(m.table.kidx, key)
}

// Release drops the reference. Calling it more than once is a no-op.
func (m *TableRef) Release() {
	m.once.Do(func() {
		m.registry.release(m.table)
	})
}

// compatTableName reports whether the selector addresses a legacy numbered
// table, the only kind of table auto-created on add.
func compatTableName(sel Selector) bool {
	if !sel.IsName() {
		return false
	}

	_, err := strconv.ParseUint(sel.Name, 10, 16)
	return err == nil
}
