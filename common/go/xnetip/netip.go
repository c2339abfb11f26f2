package xnetip

import (
	"fmt"
	"net/netip"
)

// AddrBytes returns the address in its natural length: 4 bytes for IPv4
// (including IPv4-mapped IPv6) and 16 bytes for IPv6.
func AddrBytes(addr netip.Addr) []byte {
	addr = addr.Unmap()
	if addr.Is4() {
		v4 := addr.As4()
		return v4[:]
	}

	v6 := addr.As16()
	return v6[:]
}

// AddrFromKey parses raw 4- or 16-byte key into an address.
func AddrFromKey(key []byte) (netip.Addr, error) {
	switch len(key) {
	case 4, 16:
		addr, _ := netip.AddrFromSlice(key)
		return addr, nil
	default:
		return netip.Addr{}, fmt.Errorf("address key must be 4 or 16 bytes long, got %d", len(key))
	}
}

// PrefixFromKey builds a normalized prefix out of raw key bytes and the mask
// length.
//
// Host bits beyond the mask are cleared.
func PrefixFromKey(key []byte, bits int) (netip.Prefix, error) {
	addr, err := AddrFromKey(key)
	if err != nil {
		return netip.Prefix{}, err
	}

	if bits < 0 || bits > addr.BitLen() {
		return netip.Prefix{}, fmt.Errorf("mask length %d is out of range for %d-bit address", bits, addr.BitLen())
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("failed to create prefix: %w", err)
	}

	return prefix, nil
}

