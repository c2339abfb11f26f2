// Package hashtab implements exact-match hash table algorithms.
//
// Every table is backed by a concurrent seqlock map; the map is rebuilt
// with a new capacity by the four-phase modify protocol when the entry
// count drifts away from it.
package hashtab

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/llxisdsh/pb"

	"github.com/yanet-platform/yatable/tables"
)

const (
	// DefaultSize is the initial capacity of a table.
	DefaultSize = 64
	maxSize     = 1 << 24
)

// Advisory flags.
//
// The bits from flagCapShift up carry the capacity the rebuild targets, so
// the new map is allocated by PrepareModify with no lock held.
const (
	// FlagGrow asks for a rebuild with a larger capacity.
	FlagGrow tables.AdvisoryFlags = 1 << iota
	// FlagShrink asks for a rebuild with a smaller capacity.
	FlagShrink

	flagCapShift = 8
)

func modifyFlags(flag tables.AdvisoryFlags, capacity int) tables.AdvisoryFlags {
	return flag | tables.AdvisoryFlags(capacity)<<flagCapShift
}

func flagsCap(flags tables.AdvisoryFlags) int {
	return int(flags >> flagCapShift)
}

// Codec maps raw keys onto fixed-size comparable map keys.
type Codec[K comparable] interface {
	// Key encodes the key of a stored entry.
	Key(key []byte, maskLen uint8) (K, error)
	// LookupKey encodes a hot-path lookup key.
	LookupKey(key []byte) (K, bool)
	// Entry decodes a map key.
	Entry(k K) ([]byte, uint8)
	// Config returns the codec parameters as printed by PrintConfig.
	Config() string
}

// CodecFactory builds a per-table codec.
//
// It removes the parameters it understands from params.
type CodecFactory[K comparable] func(args tables.InitArgs, params map[string]string) (Codec[K], error)

// Algorithm is a hash table algorithm over the map key type K.
type Algorithm[K comparable] struct {
	name     string
	typ      tables.KeyType
	newCodec CodecFactory[K]
}

// NewAlgorithm creates a hash table algorithm.
func NewAlgorithm[K comparable](name string, typ tables.KeyType, newCodec CodecFactory[K]) *Algorithm[K] {
	return &Algorithm[K]{
		name:     name,
		typ:      typ,
		newCodec: newCodec,
	}
}

// view is what lookups read: it is never mutated after publishing except
// through the concurrent map itself.
type view[K comparable] struct {
	codec   Codec[K]
	entries *pb.FlatMapOf[K, tables.Value]
}

type state[K comparable] struct {
	view *view[K]
	// size is the configured capacity, cap is the current one.
	size  int
	cap   int
	count int
	slot  *tables.InfoSlot
}

type plan[K comparable] struct {
	flags   tables.AdvisoryFlags
	cap     int
	entries *pb.FlatMapOf[K, tables.Value]
}

type prepared struct {
	key     []byte
	maskLen uint8
}

var preparedPool = sync.Pool{
	New: func() any {
		return &prepared{}
	},
}

func (m *Algorithm[K]) Name() string {
	return m.name
}

func (m *Algorithm[K]) Type() tables.KeyType {
	return m.typ
}

func (m *Algorithm[K]) Init(args tables.InitArgs) (tables.AlgoState, *tables.TableInfo, error) {
	params := map[string]string{}
	for _, param := range args.Params() {
		key, value, _ := strings.Cut(param, "=")
		params[key] = value
	}

	size := DefaultSize
	if value, ok := params["size"]; ok {
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil || v == 0 || v > maxSize {
			return nil, nil, fmt.Errorf("%w: size must be in [1, %d], got %q", tables.ErrInvalidArgument, maxSize, value)
		}
		size = int(v)
		delete(params, "size")
	}

	codec, err := m.newCodec(args, params)
	if err != nil {
		return nil, nil, err
	}
	if len(params) != 0 {
		unknown := slices.Sorted(maps.Keys(params))
		return nil, nil, fmt.Errorf("%w: unknown %s parameters %q", tables.ErrInvalidArgument, m.name, unknown)
	}

	v := &view[K]{
		codec:   codec,
		entries: pb.NewFlatMapOf[K, tables.Value](pb.WithPresize(size)),
	}
	st := &state[K]{
		view: v,
		size: size,
		cap:  size,
	}

	return st, &tables.TableInfo{Lookup: lookup[K], State: v}, nil
}

func lookup[K comparable](s tables.AlgoState, key []byte) (tables.Value, bool) {
	v := s.(*view[K])

	k, ok := v.codec.LookupKey(key)
	if !ok {
		return 0, false
	}

	return v.entries.Load(k)
}

// Destroy drops nothing: straggling lookups keep reading the last view.
func (m *Algorithm[K]) Destroy(tables.AlgoState, *tables.TableInfo) {}

func (m *Algorithm[K]) ChangeInfoSlot(s tables.AlgoState, slot *tables.InfoSlot) {
	s.(*state[K]).slot = slot
}

func (m *Algorithm[K]) prepare(entry *tables.TEntry) (tables.Prepared, error) {
	if err := tables.ValidateKey(m.typ, entry.Key, entry.MaskLen); err != nil {
		return nil, err
	}

	p := preparedPool.Get().(*prepared)
	p.key = append(p.key[:0], entry.Key...)
	p.maskLen = entry.MaskLen
	return p, nil
}

func (m *Algorithm[K]) PrepareAdd(entry *tables.TEntry) (tables.Prepared, error) {
	return m.prepare(entry)
}

func (m *Algorithm[K]) PrepareDel(entry *tables.TEntry) (tables.Prepared, error) {
	return m.prepare(entry)
}

func (m *Algorithm[K]) FlushEntry(_ *tables.TEntry, p tables.Prepared) {
	if p, ok := p.(*prepared); ok {
		p.key = p.key[:0]
		p.maskLen = 0
		preparedPool.Put(p)
	}
}

func (m *Algorithm[K]) CommitAdd(s tables.AlgoState, _ *tables.TableInfo, entry *tables.TEntry, p tables.Prepared) (tables.CommitResult, error) {
	st := s.(*state[K])
	pp := p.(*prepared)

	k, err := st.view.codec.Key(pp.key, pp.maskLen)
	if err != nil {
		return tables.CommitResult{}, err
	}

	result := tables.CommitResult{}
	st.view.entries.Process(k, func(old tables.Value, loaded bool) (tables.Value, pb.ComputeOp, tables.Value, bool) {
		switch {
		case loaded && entry.Flags&tables.EntryUpdate == 0:
			err = tables.ErrEntryExists
			return old, pb.CancelOp, old, loaded
		case loaded:
			result.Updated = true
			result.OldValue = old
		case entry.Flags&tables.EntryDontAdd != 0:
			err = tables.ErrKeyNotPresent
			return old, pb.CancelOp, old, loaded
		default:
			result.Delta = 1
		}
		return entry.Value, pb.UpdateOp, entry.Value, true
	})
	if err != nil {
		return tables.CommitResult{}, err
	}

	st.count += result.Delta
	if st.count > 2*st.cap {
		result.Flags = modifyFlags(FlagGrow, st.targetCap())
	}

	return result, nil
}

func (m *Algorithm[K]) CommitDel(s tables.AlgoState, _ *tables.TableInfo, _ *tables.TEntry, p tables.Prepared) (tables.CommitResult, error) {
	st := s.(*state[K])
	pp := p.(*prepared)

	k, err := st.view.codec.Key(pp.key, pp.maskLen)
	if err != nil {
		return tables.CommitResult{}, err
	}

	old, ok := st.view.entries.LoadAndDelete(k)
	if !ok {
		return tables.CommitResult{}, tables.ErrKeyNotPresent
	}

	st.count--
	result := tables.CommitResult{Delta: -1, OldValue: old}
	if st.cap > st.size && st.count < st.cap/8 {
		result.Flags = modifyFlags(FlagShrink, st.targetCap())
	}

	return result, nil
}

func (m *Algorithm[K]) ForEach(s tables.AlgoState, _ *tables.TableInfo, fn func(tables.Entry) bool) {
	v := s.(*state[K]).view

	v.entries.Range(func(k K, value tables.Value) bool {
		key, maskLen := v.codec.Entry(k)
		return fn(tables.Entry{Key: key, MaskLen: maskLen, Value: value})
	})
}

func (m *Algorithm[K]) Find(s tables.AlgoState, _ *tables.TableInfo, entry *tables.TEntry) (tables.Entry, bool, error) {
	v := s.(*state[K]).view

	k, err := v.codec.Key(entry.Key, entry.MaskLen)
	if err != nil {
		return tables.Entry{}, false, err
	}

	value, ok := v.entries.Load(k)
	if !ok {
		return tables.Entry{}, false, nil
	}

	key, maskLen := v.codec.Entry(k)
	return tables.Entry{Key: key, MaskLen: maskLen, Value: value}, true, nil
}

// PrepareModify allocates the map of the capacity the flags carry.
func (m *Algorithm[K]) PrepareModify(flags tables.AdvisoryFlags) (tables.ModifyPlan, error) {
	pl := &plan[K]{flags: flags}

	target := flagsCap(flags)
	if target == 0 {
		return pl, nil
	}
	if target > maxSize {
		return nil, fmt.Errorf("%w: capacity %d exceeds %d", tables.ErrInvalidArgument, target, maxSize)
	}

	pl.cap = target
	pl.entries = pb.NewFlatMapOf[K, tables.Value](pb.WithPresize(target))

	return pl, nil
}

// targetCap returns the capacity the entry count calls for.
func (m *state[K]) targetCap() int {
	target := m.cap
	for m.count > 2*target && target < maxSize {
		target *= 2
	}
	for target > m.size && m.count < target/8 {
		target = max(target/2, m.size)
	}

	return target
}

// FillModify copies the entries into the map allocated by PrepareModify.
//
// A plan targeting the current capacity is stale: a rebuild already ran
// after the flags were raised.
func (m *Algorithm[K]) FillModify(s tables.AlgoState, _ *tables.TableInfo, p tables.ModifyPlan) (bool, error) {
	st := s.(*state[K])
	pl := p.(*plan[K])

	if pl.entries == nil || pl.cap == st.cap {
		return false, nil
	}

	st.view.entries.Range(func(k K, value tables.Value) bool {
		pl.entries.Store(k, value)
		return true
	})

	return true, nil
}

func (m *Algorithm[K]) ApplyModify(s tables.AlgoState, _ *tables.TableInfo, p tables.ModifyPlan) {
	st := s.(*state[K])
	pl := p.(*plan[K])

	if st.slot == nil {
		panic(fmt.Sprintf("%s: modifying unlinked table", m.name))
	}

	v := &view[K]{
		codec:   st.view.codec,
		entries: pl.entries,
	}
	st.slot.Store(&tables.TableInfo{Lookup: lookup[K], State: v})
	st.view = v
	st.cap = pl.cap
	pl.entries = nil
}

func (m *Algorithm[K]) FlushModify(p tables.ModifyPlan) {
	if pl, ok := p.(*plan[K]); ok {
		pl.entries = nil
	}
}

func (m *Algorithm[K]) PrintConfig(s tables.AlgoState, _ *tables.TableInfo) string {
	st := s.(*state[K])

	parts := []string{m.name}
	if config := st.view.codec.Config(); config != "" {
		parts = append(parts, config)
	}
	if st.size != DefaultSize {
		parts = append(parts, fmt.Sprintf("size=%d", st.size))
	}

	return strings.Join(parts, " ")
}
