package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

func TestStaticIfaces(t *testing.T) {
	ifaces := StaticIfaces{2: "eth0"}

	name, err := ifaces.IfaceName(2)
	require.NoError(t, err)
	assert.Equal(t, "eth0", name)

	_, err = ifaces.IfaceName(3)
	assert.Error(t, err)
}

func TestNetlinkIfacesLoopback(t *testing.T) {
	lo, err := netlink.LinkByName("lo")
	if err != nil {
		t.Skipf("netlink is not available: %v", err)
	}
	index := lo.Attrs().Index

	ifaces := NewNetlinkIfaces()

	name, err := ifaces.IfaceName(index)
	require.NoError(t, err)
	assert.Equal(t, "lo", name)

	// Served from the cache.
	cached, ok := ifaces.names.Load(index)
	require.True(t, ok)
	assert.Equal(t, "lo", cached)

	ifaces.Invalidate()
	_, ok = ifaces.names.Load(index)
	assert.False(t, ok)

	_, err = ifaces.IfaceName(1 << 30)
	assert.Error(t, err)
}
