package classify

import (
	"fmt"

	"github.com/llxisdsh/pb"
	"github.com/vishvananda/netlink"
)

// IfaceResolver maps interface indices onto interface names.
type IfaceResolver interface {
	IfaceName(index int) (string, error)
}

// StaticIfaces is a fixed index to name mapping.
type StaticIfaces map[int]string

// IfaceName implements IfaceResolver.
func (m StaticIfaces) IfaceName(index int) (string, error) {
	name, ok := m[index]
	if !ok {
		return "", fmt.Errorf("interface %d not found", index)
	}

	return name, nil
}

// NetlinkIfaces resolves interface names through netlink, caching the
// results.
//
// Interfaces renamed after the first resolution keep their old name until
// Invalidate is called.
type NetlinkIfaces struct {
	names *pb.FlatMapOf[int, string]
}

// NewNetlinkIfaces creates a new netlink interface resolver.
func NewNetlinkIfaces() *NetlinkIfaces {
	return &NetlinkIfaces{
		names: pb.NewFlatMapOf[int, string](),
	}
}

// IfaceName implements IfaceResolver.
func (m *NetlinkIfaces) IfaceName(index int) (string, error) {
	if name, ok := m.names.Load(index); ok {
		return name, nil
	}

	link, err := netlink.LinkByIndex(index)
	if err != nil {
		return "", fmt.Errorf("failed to get interface %d: %w", index, err)
	}

	name := link.Attrs().Name
	m.names.Store(index, name)

	return name, nil
}

// Invalidate drops every cached name.
func (m *NetlinkIfaces) Invalidate() {
	m.names.Clear()
}
