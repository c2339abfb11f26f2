package tables

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/yanet-platform/yatable/common/go/xnetip"
)

const (
	// MaxIfaceNameLen is the longest interface name, IFNAMSIZ without the
	// terminating zero.
	MaxIfaceNameLen = 15
	// NumberKeySize is the size of a number key.
	NumberKeySize = 4
	// FlowKeySize is the size of a flow key.
	FlowKeySize = 38
)

// Flow key layout.
const (
	flowOffFamily = 0
	flowOffProto  = 1
	flowOffSport  = 2
	flowOffDport  = 4
	flowOffSrc    = 6
	flowOffDst    = 22
)

// FlowKey is the decoded form of a flow key.
type FlowKey struct {
	Proto uint8
	Src   netip.AddrPort
	Dst   netip.AddrPort
}

// Bytes encodes the flow key.
//
// The layout is family(1) proto(1) sport(2) dport(2) src(16) dst(16), ports
// in network byte order, IPv4 addresses stored IPv4-mapped.
func (m FlowKey) Bytes() []byte {
	key := make([]byte, FlowKeySize)

	key[flowOffFamily] = 6
	if m.Src.Addr().Unmap().Is4() || m.Dst.Addr().Unmap().Is4() {
		key[flowOffFamily] = 4
	}
	key[flowOffProto] = m.Proto
	binary.BigEndian.PutUint16(key[flowOffSport:], m.Src.Port())
	binary.BigEndian.PutUint16(key[flowOffDport:], m.Dst.Port())
	src := m.Src.Addr().As16()
	dst := m.Dst.Addr().As16()
	copy(key[flowOffSrc:], src[:])
	copy(key[flowOffDst:], dst[:])

	return key
}

// DecodeFlowKey decodes an encoded flow key.
func DecodeFlowKey(key []byte) (FlowKey, error) {
	if len(key) != FlowKeySize {
		return FlowKey{}, fmt.Errorf("%w: flow key must be %d bytes long, got %d", ErrInvalidKey, FlowKeySize, len(key))
	}

	src := netip.AddrFrom16([16]byte(key[flowOffSrc : flowOffSrc+16]))
	dst := netip.AddrFrom16([16]byte(key[flowOffDst : flowOffDst+16]))

	switch key[flowOffFamily] {
	case 4:
		src, dst = src.Unmap(), dst.Unmap()
	case 6:
	default:
		return FlowKey{}, fmt.Errorf("%w: unknown flow key family %d", ErrInvalidKey, key[flowOffFamily])
	}

	return FlowKey{
		Proto: key[flowOffProto],
		Src:   netip.AddrPortFrom(src, binary.BigEndian.Uint16(key[flowOffSport:])),
		Dst:   netip.AddrPortFrom(dst, binary.BigEndian.Uint16(key[flowOffDport:])),
	}, nil
}

// MaskFlowKey clears the fields of an encoded flow key that the mask does
// not select, in place. The family is always kept.
func MaskFlowKey(key []byte, mask FlowMask) {
	if len(key) != FlowKeySize {
		return
	}

	if mask&FlowProto == 0 {
		key[flowOffProto] = 0
	}
	if mask&FlowSrcPort == 0 {
		clear(key[flowOffSport : flowOffSport+2])
	}
	if mask&FlowDstPort == 0 {
		clear(key[flowOffDport : flowOffDport+2])
	}
	if mask&FlowSrcAddr == 0 {
		clear(key[flowOffSrc : flowOffSrc+16])
	}
	if mask&FlowDstAddr == 0 {
		clear(key[flowOffDst : flowOffDst+16])
	}
}

// AddrKey encodes an address prefix.
func AddrKey(prefix netip.Prefix) ([]byte, uint8) {
	prefix = prefix.Masked()
	bits := prefix.Bits()
	if prefix.Addr().Is4In6() {
		bits = max(bits-96, 0)
	}

	return xnetip.AddrBytes(prefix.Addr()), uint8(bits)
}

// IfaceKey encodes an interface name.
func IfaceKey(name string) []byte {
	return []byte(name)
}

// NumberKey encodes a number.
func NumberKey(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// ValidateKey checks the key length and mask for the key type.
func ValidateKey(typ KeyType, key []byte, maskLen uint8) error {
	switch typ {
	case KeyTypeAddr:
		bits := len(key) * 8
		if len(key) != 4 && len(key) != 16 {
			return fmt.Errorf("%w: address key must be 4 or 16 bytes long, got %d", ErrInvalidKey, len(key))
		}
		if int(maskLen) > bits {
			return fmt.Errorf("%w: mask length %d exceeds %d bits", ErrInvalidKey, maskLen, bits)
		}
		// IPv4 entries are stored in their 4-byte form only.
		if len(key) == 16 && netip.AddrFrom16([16]byte(key)).Is4In6() {
			return fmt.Errorf("%w: IPv4-mapped address must be encoded as 4-byte IPv4", ErrInvalidKey)
		}
	case KeyTypeIface:
		if len(key) == 0 || len(key) > MaxIfaceNameLen {
			return fmt.Errorf("%w: interface name must be 1..%d bytes long, got %d", ErrInvalidKey, MaxIfaceNameLen, len(key))
		}
		if bytes.IndexByte(key, 0) >= 0 {
			return fmt.Errorf("%w: interface name contains zero byte", ErrInvalidKey)
		}
	case KeyTypeNumber:
		if len(key) != NumberKeySize {
			return fmt.Errorf("%w: number key must be %d bytes long, got %d", ErrInvalidKey, NumberKeySize, len(key))
		}
	case KeyTypeFlow:
		if _, err := DecodeFlowKey(key); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unsupported key type %s", ErrInvalidKey, typ)
	}

	return nil
}

var protoNames = map[string]uint8{
	"icmp":   1,
	"tcp":    6,
	"udp":    17,
	"icmpv6": 58,
}

// ParseKey parses the text form of a key:
//   - addr: "10.0.0.0/24", "2001:db8::/32" or a bare address;
//   - iface: an interface name;
//   - number: a decimal number;
//   - flow: "proto,src:sport,dst:dport", for example
//     "tcp,10.0.0.1:1234,10.0.0.2:80"; IPv6 addresses are bracketed.
func ParseKey(typ KeyType, s string) ([]byte, uint8, error) {
	switch typ {
	case KeyTypeAddr:
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: %v", ErrInvalidKey, err)
			}
			s = netip.PrefixFrom(addr, addr.BitLen()).String()
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		key, maskLen := AddrKey(prefix)
		return key, maskLen, nil
	case KeyTypeIface:
		key := IfaceKey(s)
		if err := ValidateKey(typ, key, 0); err != nil {
			return nil, 0, err
		}
		return key, 0, nil
	case KeyTypeNumber:
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return NumberKey(uint32(v)), 0, nil
	case KeyTypeFlow:
		flow, err := parseFlowKey(s)
		if err != nil {
			return nil, 0, err
		}
		return flow.Bytes(), 0, nil
	default:
		return nil, 0, fmt.Errorf("%w: unsupported key type %s", ErrInvalidKey, typ)
	}
}

func parseFlowKey(s string) (FlowKey, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return FlowKey{}, fmt.Errorf("%w: flow key must be \"proto,src:port,dst:port\", got %q", ErrInvalidKey, s)
	}

	proto, ok := protoNames[parts[0]]
	if !ok {
		v, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return FlowKey{}, fmt.Errorf("%w: unknown protocol %q", ErrInvalidKey, parts[0])
		}
		proto = uint8(v)
	}

	src, err := netip.ParseAddrPort(parts[1])
	if err != nil {
		return FlowKey{}, fmt.Errorf("%w: source: %v", ErrInvalidKey, err)
	}
	dst, err := netip.ParseAddrPort(parts[2])
	if err != nil {
		return FlowKey{}, fmt.Errorf("%w: destination: %v", ErrInvalidKey, err)
	}
	if src.Addr().Unmap().Is4() != dst.Addr().Unmap().Is4() {
		return FlowKey{}, fmt.Errorf("%w: mixed address families", ErrInvalidKey)
	}

	return FlowKey{Proto: proto, Src: src, Dst: dst}, nil
}

// FormatKey returns the text form of a key, the inverse of ParseKey.
func FormatKey(typ KeyType, key []byte, maskLen uint8) string {
	switch typ {
	case KeyTypeAddr:
		prefix, err := xnetip.PrefixFromKey(key, int(maskLen))
		if err != nil {
			break
		}
		return prefix.String()
	case KeyTypeIface:
		return string(key)
	case KeyTypeNumber:
		if len(key) != NumberKeySize {
			break
		}
		return strconv.FormatUint(uint64(binary.BigEndian.Uint32(key)), 10)
	case KeyTypeFlow:
		flow, err := DecodeFlowKey(key)
		if err != nil {
			break
		}
		proto := strconv.Itoa(int(flow.Proto))
		for name, v := range protoNames {
			if v == flow.Proto {
				proto = name
				break
			}
		}
		return fmt.Sprintf("%s,%s,%s", proto, flow.Src, flow.Dst)
	}

	return fmt.Sprintf("%x/%d", key, maskLen)
}
