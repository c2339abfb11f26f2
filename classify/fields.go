// Package classify matches packets against lookup tables.
package classify

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/yanet-platform/yatable/tables"
)

// ErrNotIP is returned for packets without an IPv4 or IPv6 header.
var ErrNotIP = errors.New("not an IP packet")

// Field selects the packet field a table is looked up with.
type Field uint8

const (
	FieldSrcAddr Field = iota
	FieldDstAddr
	FieldProto
	FieldSrcPort
	FieldDstPort
	FieldInIface
	FieldFlow
)

var fieldNames = [...]string{
	FieldSrcAddr: "src-ip",
	FieldDstAddr: "dst-ip",
	FieldProto:   "proto",
	FieldSrcPort: "src-port",
	FieldDstPort: "dst-port",
	FieldInIface: "in-iface",
	FieldFlow:    "flow",
}

// String implements fmt.Stringer.
func (m Field) String() string {
	if int(m) < len(fieldNames) {
		return fieldNames[m]
	}

	return fmt.Sprintf("Field(%d)", uint8(m))
}

// ParseField parses the textual field representation.
func ParseField(s string) (Field, error) {
	for idx, name := range fieldNames {
		if name == s {
			return Field(idx), nil
		}
	}

	return 0, fmt.Errorf("unknown packet field %q", s)
}

// KeyType returns the type of tables the field can be looked up in.
func (m Field) KeyType() tables.KeyType {
	switch m {
	case FieldSrcAddr, FieldDstAddr:
		return tables.KeyTypeAddr
	case FieldProto, FieldSrcPort, FieldDstPort:
		return tables.KeyTypeNumber
	case FieldInIface:
		return tables.KeyTypeIface
	case FieldFlow:
		return tables.KeyTypeFlow
	default:
		return tables.KeyTypeInvalid
	}
}

// Fields are the packet header fields tables are keyed by.
type Fields struct {
	Proto uint8
	// Src and Dst carry zero ports for protocols without ports.
	Src netip.AddrPort
	Dst netip.AddrPort
	// InIface is the index of the interface the packet was received on.
	InIface int
}

// Extract decodes the classification fields of a packet.
func Extract(pkt gopacket.Packet) (Fields, error) {
	var (
		fields   Fields
		src, dst netip.Addr
	)

	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
		dst, _ = netip.AddrFromSlice(ip.DstIP.To4())
		fields.Proto = uint8(ip.Protocol)
	case *layers.IPv6:
		src, _ = netip.AddrFromSlice(ip.SrcIP.To16())
		dst, _ = netip.AddrFromSlice(ip.DstIP.To16())
		fields.Proto = uint8(ip.NextHeader)
	default:
		return Fields{}, ErrNotIP
	}
	if !src.IsValid() || !dst.IsValid() {
		return Fields{}, fmt.Errorf("%w: malformed addresses", ErrNotIP)
	}

	var sport, dport uint16
	switch l4 := pkt.TransportLayer().(type) {
	case *layers.TCP:
		sport, dport = uint16(l4.SrcPort), uint16(l4.DstPort)
	case *layers.UDP:
		sport, dport = uint16(l4.SrcPort), uint16(l4.DstPort)
	case *layers.SCTP:
		sport, dport = uint16(l4.SrcPort), uint16(l4.DstPort)
	}

	fields.Src = netip.AddrPortFrom(src, sport)
	fields.Dst = netip.AddrPortFrom(dst, dport)
	fields.InIface = pkt.Metadata().InterfaceIndex

	return fields, nil
}

// Key encodes the field as a lookup key.
//
// Interface names are resolved through ifaces; false is returned when the
// field cannot be keyed.
func (m *Fields) Key(field Field, ifaces IfaceResolver) ([]byte, bool) {
	switch field {
	case FieldSrcAddr:
		return m.Src.Addr().AsSlice(), true
	case FieldDstAddr:
		return m.Dst.Addr().AsSlice(), true
	case FieldProto:
		return tables.NumberKey(uint32(m.Proto)), true
	case FieldSrcPort:
		return tables.NumberKey(uint32(m.Src.Port())), true
	case FieldDstPort:
		return tables.NumberKey(uint32(m.Dst.Port())), true
	case FieldInIface:
		if ifaces == nil || m.InIface == 0 {
			return nil, false
		}
		name, err := ifaces.IfaceName(m.InIface)
		if err != nil {
			return nil, false
		}
		return tables.IfaceKey(name), true
	case FieldFlow:
		key := tables.FlowKey{Proto: m.Proto, Src: m.Src, Dst: m.Dst}
		return key.Bytes(), true
	default:
		return nil, false
	}
}
