package tables

import (
	"fmt"
	"strconv"
	"strings"
)

// TableID is the kernel index (kidx) of a table.
//
// It directly indexes the flat array of hot-path descriptors and stays
// stable for the whole time the table is linked.
type TableID uint16

// String implements fmt.Stringer.
func (m TableID) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// KeyType is the type of keys a table stores.
type KeyType uint8

const (
	// KeyTypeInvalid is the zero value.
	//
	// Entries carrying it inherit the type of the table they target.
	KeyTypeInvalid KeyType = iota
	// KeyTypeAddr tables hold IPv4/IPv6 prefixes.
	KeyTypeAddr
	// KeyTypeIface tables hold interface names.
	KeyTypeIface
	// KeyTypeNumber tables hold 32-bit numbers.
	KeyTypeNumber
	// KeyTypeFlow tables hold (masked) 5-tuples.
	KeyTypeFlow
)

var keyTypeNames = [...]string{
	KeyTypeInvalid: "invalid",
	KeyTypeAddr:    "addr",
	KeyTypeIface:   "iface",
	KeyTypeNumber:  "number",
	KeyTypeFlow:    "flow",
}

// String implements fmt.Stringer.
func (m KeyType) String() string {
	if int(m) < len(keyTypeNames) {
		return keyTypeNames[m]
	}

	return fmt.Sprintf("KeyType(%d)", uint8(m))
}

// ParseKeyType parses the textual key type representation.
func ParseKeyType(s string) (KeyType, error) {
	for idx, name := range keyTypeNames {
		if idx != int(KeyTypeInvalid) && name == s {
			return KeyType(idx), nil
		}
	}

	return KeyTypeInvalid, fmt.Errorf("unknown key type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m KeyType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *KeyType) UnmarshalText(text []byte) error {
	v, err := ParseKeyType(string(text))
	if err != nil {
		return err
	}

	*m = v
	return nil
}

// ValueType describes how values stored in a table are interpreted by its
// consumers.
//
// The engine itself never looks at it.
type ValueType uint8

const (
	ValueTypeLegacy ValueType = iota
	ValueTypeSkipto
	ValueTypePipe
	ValueTypeFib
	ValueTypeNat
	ValueTypeNh4
	ValueTypeNh6
	ValueTypeDscp
	ValueTypeTag
	ValueTypeDivert
	ValueTypeNetgraph
	ValueTypeLimit
	ValueTypeMark
)

var valueTypeNames = [...]string{
	ValueTypeLegacy:   "legacy",
	ValueTypeSkipto:   "skipto",
	ValueTypePipe:     "pipe",
	ValueTypeFib:      "fib",
	ValueTypeNat:      "nat",
	ValueTypeNh4:      "nh4",
	ValueTypeNh6:      "nh6",
	ValueTypeDscp:     "dscp",
	ValueTypeTag:      "tag",
	ValueTypeDivert:   "divert",
	ValueTypeNetgraph: "netgraph",
	ValueTypeLimit:    "limit",
	ValueTypeMark:     "mark",
}

// String implements fmt.Stringer.
func (m ValueType) String() string {
	if int(m) < len(valueTypeNames) {
		return valueTypeNames[m]
	}

	return fmt.Sprintf("ValueType(%d)", uint8(m))
}

// ParseValueType parses the textual value type representation.
//
// Empty string means ValueTypeLegacy.
func ParseValueType(s string) (ValueType, error) {
	if s == "" {
		return ValueTypeLegacy, nil
	}

	for idx, name := range valueTypeNames {
		if name == s {
			return ValueType(idx), nil
		}
	}

	return ValueTypeLegacy, fmt.Errorf("unknown value type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m ValueType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ValueType) UnmarshalText(text []byte) error {
	v, err := ParseValueType(string(text))
	if err != nil {
		return err
	}

	*m = v
	return nil
}

// Value is the value associated with a table entry.
type Value uint32

// FlowMask selects the 5-tuple fields a flow table matches on.
type FlowMask uint8

const (
	FlowSrcAddr FlowMask = 1 << iota
	FlowDstAddr
	FlowProto
	FlowSrcPort
	FlowDstPort

	FlowAll = FlowSrcAddr | FlowDstAddr | FlowProto | FlowSrcPort | FlowDstPort
)

var flowMaskNames = []struct {
	bit  FlowMask
	name string
}{
	{FlowSrcAddr, "src-ip"},
	{FlowProto, "proto"},
	{FlowSrcPort, "src-port"},
	{FlowDstAddr, "dst-ip"},
	{FlowDstPort, "dst-port"},
}

// String implements fmt.Stringer.
func (m FlowMask) String() string {
	parts := make([]string, 0, len(flowMaskNames))
	for _, v := range flowMaskNames {
		if m&v.bit != 0 {
			parts = append(parts, v.name)
		}
	}

	return strings.Join(parts, ",")
}

// ParseFlowMask parses comma-separated flow field names, for example
// "src-ip,proto,dst-port".
func ParseFlowMask(s string) (FlowMask, error) {
	mask := FlowMask(0)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		found := false
		for _, v := range flowMaskNames {
			if v.name == part {
				mask |= v.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flow field %q", part)
		}
	}

	return mask, nil
}

// EntryFlags modify the behavior of entry mutations.
type EntryFlags uint8

const (
	// EntryUpdate allows replacing the value of an existing key.
	EntryUpdate EntryFlags = 1 << iota
	// EntryCompat enables legacy auto-creation of a missing table on add.
	//
	// Only tables addressed by a numeric name can be auto-created.
	EntryCompat
	// EntryDontAdd restricts an add to updating existing keys.
	//
	// The pipeline sets it when the table reached its entry limit.
	EntryDontAdd
)

// TEntry describes a single entry for the duration of one add/del/find call.
type TEntry struct {
	// Type is the key type of the entry. Zero value inherits the table type.
	Type KeyType
	// Key is the encoded key, see ParseKey for the per-type layouts.
	Key []byte
	// MaskLen is the prefix length for address keys.
	MaskLen uint8
	// Value is the value to store.
	Value Value
	// Flags modify mutation behavior.
	Flags EntryFlags
}

// Entry is a stored table entry as returned by enumeration and find.
type Entry struct {
	Key     []byte
	MaskLen uint8
	Value   Value
}

// Selector addresses a table either by its kidx or by its (set, name) pair.
type Selector struct {
	ID     TableID
	Set    uint32
	Name   string
	byName bool
}

// ByID selects a table by its kidx.
func ByID(id TableID) Selector {
	return Selector{ID: id}
}

// ByName selects a table by its set and name.
func ByName(set uint32, name string) Selector {
	return Selector{Set: set, Name: name, byName: true}
}

// IsName reports whether the selector addresses a table by name.
func (m Selector) IsName() bool {
	return m.byName
}

// String implements fmt.Stringer.
func (m Selector) String() string {
	if m.byName {
		return fmt.Sprintf("%d/%s", m.Set, m.Name)
	}

	return "#" + m.ID.String()
}

// TableSpec is the set of parameters a table is created with.
type TableSpec struct {
	// Name is the table name, unique within its set.
	Name string
	// Set is the namespace partition the name belongs to.
	Set uint32
	// Type is the key type.
	Type KeyType
	// ValueType is the descriptive value type.
	ValueType ValueType
	// Algorithm is an optional algorithm configuration string.
	//
	// Its first word selects the algorithm by name, the rest are algorithm
	// parameters, for example "addr:hash masks=/24,/64". Empty string selects
	// the default algorithm of the key type.
	Algorithm string
	// Limit is the maximum number of entries. Zero means unbounded.
	Limit uint32
	// FlowMask selects matched fields of flow tables. Zero means all.
	FlowMask FlowMask
}

const maxTableNameLen = 63

func (m *TableSpec) validate() error {
	if err := validateTableName(m.Name); err != nil {
		return err
	}

	switch m.Type {
	case KeyTypeAddr, KeyTypeIface, KeyTypeNumber, KeyTypeFlow:
	default:
		return fmt.Errorf("%w: unsupported key type %s", ErrInvalidArgument, m.Type)
	}

	if int(m.ValueType) >= len(valueTypeNames) {
		return fmt.Errorf("%w: unsupported value type %s", ErrInvalidArgument, m.ValueType)
	}

	if m.Type == KeyTypeFlow {
		if m.FlowMask == 0 {
			m.FlowMask = FlowAll
		}
		if m.FlowMask&^FlowAll != 0 {
			return fmt.Errorf("%w: invalid flow mask %#x", ErrInvalidArgument, uint8(m.FlowMask))
		}
	} else if m.FlowMask != 0 {
		return fmt.Errorf("%w: flow mask is only valid for flow tables", ErrInvalidArgument)
	}

	return nil
}

func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidArgument)
	}
	if len(name) > maxTableNameLen {
		return fmt.Errorf("%w: table name is longer than %d bytes", ErrInvalidArgument, maxTableNameLen)
	}

	for _, r := range name {
		if r <= ' ' || r > '~' || r == '/' {
			return fmt.Errorf("%w: table name %q contains invalid character %q", ErrInvalidArgument, name, r)
		}
	}

	return nil
}

// TableUpdate carries the mutable table parameters for Modify.
//
// Nil fields are left unchanged.
type TableUpdate struct {
	Limit  *uint32
	Locked *bool
}

// Summary describes a single table.
type Summary struct {
	ID        TableID
	Set       uint32
	Name      string
	Type      KeyType
	ValueType ValueType
	FlowMask  FlowMask
	Algorithm string
	Config    string
	Count     uint32
	Limit     uint32
	RefCount  int32
	Locked    bool
}

// AlgorithmInfo describes a registered algorithm.
type AlgorithmInfo struct {
	Name     string
	Type     KeyType
	Default  bool
	RefCount uint32
}
