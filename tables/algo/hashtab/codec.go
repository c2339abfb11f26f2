package hashtab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/yanet-platform/yatable/tables"
)

// Algorithm names.
const (
	AddrName   = "addr:hash"
	IfaceName  = "iface:hash"
	NumberName = "number:hash"
	FlowName   = "flow:hash"
)

// NewAddr creates the exact-match address algorithm.
//
// Its "masks=/V4,/V6" parameter sets the only mask lengths accepted for
// each family; lookups mask the address accordingly. The default is
// "masks=/32,/128", that is host addresses.
func NewAddr() *Algorithm[AddrKey] {
	return NewAlgorithm(AddrName, tables.KeyTypeAddr, newAddrCodec)
}

// NewIface creates the interface name algorithm.
func NewIface() *Algorithm[IfaceKey] {
	return NewAlgorithm(IfaceName, tables.KeyTypeIface, func(tables.InitArgs, map[string]string) (Codec[IfaceKey], error) {
		return ifaceCodec{}, nil
	})
}

// NewNumber creates the number algorithm.
func NewNumber() *Algorithm[uint32] {
	return NewAlgorithm(NumberName, tables.KeyTypeNumber, func(tables.InitArgs, map[string]string) (Codec[uint32], error) {
		return numberCodec{}, nil
	})
}

// NewFlow creates the flow algorithm.
//
// Fields not selected by the table flow mask are ignored both on insertion
// and on lookup.
func NewFlow() *Algorithm[FlowKey] {
	return NewAlgorithm(FlowName, tables.KeyTypeFlow, func(args tables.InitArgs, _ map[string]string) (Codec[FlowKey], error) {
		mask := args.FlowMask
		if mask == 0 {
			mask = tables.FlowAll
		}
		return flowCodec{mask: mask}, nil
	})
}

// AddrKey is the map key of address tables.
type AddrKey struct {
	addr [16]byte
	v6   bool
}

type addrCodec struct {
	mask4 uint8
	mask6 uint8
}

func newAddrCodec(_ tables.InitArgs, params map[string]string) (Codec[AddrKey], error) {
	m := addrCodec{mask4: 32, mask6: 128}

	value, ok := params["masks"]
	if !ok {
		return m, nil
	}
	delete(params, "masks")

	v4, v6, ok := strings.Cut(value, ",")
	if !ok {
		return nil, fmt.Errorf("%w: masks must be \"/V4,/V6\", got %q", tables.ErrInvalidArgument, value)
	}

	mask4, err := parseMask(v4, 32)
	if err != nil {
		return nil, err
	}
	mask6, err := parseMask(v6, 128)
	if err != nil {
		return nil, err
	}
	m.mask4, m.mask6 = mask4, mask6

	return m, nil
}

func parseMask(s string, bits int) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "/"), 10, 8)
	if err != nil || int(v) > bits {
		return 0, fmt.Errorf("%w: invalid mask %q", tables.ErrInvalidArgument, s)
	}

	return uint8(v), nil
}

func maskBits(b []byte, bits uint8) {
	for idx := range b {
		switch {
		case bits >= 8:
			bits -= 8
		case bits > 0:
			b[idx] &= ^byte(0xff >> bits)
			bits = 0
		default:
			b[idx] = 0
		}
	}
}

func (m addrCodec) key(key []byte) (AddrKey, bool) {
	k := AddrKey{}

	switch len(key) {
	case 4:
		copy(k.addr[:], key)
		maskBits(k.addr[:4], m.mask4)
	case 16:
		copy(k.addr[:], key)
		maskBits(k.addr[:], m.mask6)
		k.v6 = true
	default:
		return AddrKey{}, false
	}

	return k, true
}

func (m addrCodec) Key(key []byte, maskLen uint8) (AddrKey, error) {
	k, ok := m.key(key)
	if !ok {
		return AddrKey{}, fmt.Errorf("%w: address key must be 4 or 16 bytes long, got %d", tables.ErrInvalidKey, len(key))
	}

	want := m.mask4
	if k.v6 {
		want = m.mask6
	}
	if maskLen != want {
		return AddrKey{}, fmt.Errorf("%w: mask length must be %d, got %d", tables.ErrInvalidKey, want, maskLen)
	}

	return k, nil
}

// LookupKey treats IPv4-mapped addresses as IPv4.
func (m addrCodec) LookupKey(key []byte) (AddrKey, bool) {
	if len(key) == 16 {
		if addr := netip.AddrFrom16([16]byte(key)); addr.Is4In6() {
			v4 := addr.As4()
			return m.key(v4[:])
		}
	}

	return m.key(key)
}

func (m addrCodec) Entry(k AddrKey) ([]byte, uint8) {
	if k.v6 {
		return bytes.Clone(k.addr[:]), m.mask6
	}

	return bytes.Clone(k.addr[:4]), m.mask4
}

func (m addrCodec) Config() string {
	return fmt.Sprintf("masks=/%d,/%d", m.mask4, m.mask6)
}

// IfaceKey is the map key of interface tables: the zero-padded name.
type IfaceKey [tables.MaxIfaceNameLen + 1]byte

type ifaceCodec struct{}

func (ifaceCodec) Key(key []byte, _ uint8) (IfaceKey, error) {
	k, ok := ifaceCodec{}.LookupKey(key)
	if !ok {
		return IfaceKey{}, fmt.Errorf("%w: interface name must be 1..%d bytes long", tables.ErrInvalidKey, tables.MaxIfaceNameLen)
	}

	return k, nil
}

func (ifaceCodec) LookupKey(key []byte) (IfaceKey, bool) {
	k := IfaceKey{}
	if len(key) == 0 || len(key) > tables.MaxIfaceNameLen {
		return k, false
	}

	copy(k[:], key)
	return k, true
}

func (ifaceCodec) Entry(k IfaceKey) ([]byte, uint8) {
	name, _, _ := bytes.Cut(k[:], []byte{0})
	return bytes.Clone(name), 0
}

func (ifaceCodec) Config() string {
	return ""
}

type numberCodec struct{}

func (numberCodec) Key(key []byte, _ uint8) (uint32, error) {
	k, ok := numberCodec{}.LookupKey(key)
	if !ok {
		return 0, fmt.Errorf("%w: number key must be %d bytes long, got %d", tables.ErrInvalidKey, tables.NumberKeySize, len(key))
	}

	return k, nil
}

func (numberCodec) LookupKey(key []byte) (uint32, bool) {
	if len(key) != tables.NumberKeySize {
		return 0, false
	}

	return binary.BigEndian.Uint32(key), true
}

func (numberCodec) Entry(k uint32) ([]byte, uint8) {
	return tables.NumberKey(k), 0
}

func (numberCodec) Config() string {
	return ""
}

// FlowKey is the map key of flow tables: the masked encoded flow.
type FlowKey [tables.FlowKeySize]byte

type flowCodec struct {
	mask tables.FlowMask
}

func (m flowCodec) Key(key []byte, _ uint8) (FlowKey, error) {
	if _, err := tables.DecodeFlowKey(key); err != nil {
		return FlowKey{}, err
	}

	k, _ := m.LookupKey(key)
	return k, nil
}

func (m flowCodec) LookupKey(key []byte) (FlowKey, bool) {
	k := FlowKey{}
	if len(key) != tables.FlowKeySize {
		return k, false
	}

	copy(k[:], key)
	tables.MaskFlowKey(k[:], m.mask)
	return k, true
}

func (m flowCodec) Entry(k FlowKey) ([]byte, uint8) {
	return bytes.Clone(k[:]), 0
}

func (m flowCodec) Config() string {
	return ""
}
