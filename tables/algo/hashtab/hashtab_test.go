package hashtab

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yatable/tables"
)

func TestAddrCodec(t *testing.T) {
	codec, err := newAddrCodec(tables.InitArgs{}, map[string]string{"masks": "/24,/64"})
	require.NoError(t, err)
	require.Equal(t, "masks=/24,/64", codec.Config())

	k, err := codec.Key([]byte{10, 0, 1, 0}, 24)
	require.NoError(t, err)

	_, err = codec.Key([]byte{10, 0, 1, 0}, 32)
	require.ErrorIs(t, err, tables.ErrInvalidKey)

	lk, ok := codec.LookupKey([]byte{10, 0, 1, 77})
	require.True(t, ok)
	require.Equal(t, k, lk)

	key, maskLen := codec.Entry(k)
	require.Equal(t, []byte{10, 0, 1, 0}, key)
	require.Equal(t, uint8(24), maskLen)

	v6 := netip.MustParseAddr("2001:db8:0:1:ffff::1").AsSlice()
	lk, ok = codec.LookupKey(v6)
	require.True(t, ok)
	key, maskLen = codec.Entry(lk)
	require.Equal(t, netip.MustParseAddr("2001:db8:0:1::").AsSlice(), key)
	require.Equal(t, uint8(64), maskLen)

	// IPv4-mapped lookups hit IPv4 entries.
	mapped := netip.MustParseAddr("::ffff:10.0.1.77").As16()
	lk, ok = codec.LookupKey(mapped[:])
	require.True(t, ok)
	require.Equal(t, k, lk)

	for _, masks := range []string{"/24", "/33,/64", "/24,/129", "x,/64"} {
		_, err := newAddrCodec(tables.InitArgs{}, map[string]string{"masks": masks})
		assert.ErrorIs(t, err, tables.ErrInvalidArgument, masks)
	}
}

func TestMaskBits(t *testing.T) {
	cases := []struct {
		bits uint8
		in   []byte
		out  []byte
	}{
		{0, []byte{0xff, 0xff}, []byte{0, 0}},
		{4, []byte{0xff, 0xff}, []byte{0xf0, 0}},
		{8, []byte{0xff, 0xff}, []byte{0xff, 0}},
		{13, []byte{0xff, 0xff}, []byte{0xff, 0xf8}},
		{16, []byte{0xff, 0xff}, []byte{0xff, 0xff}},
	}

	for _, c := range cases {
		maskBits(c.in, c.bits)
		require.Equal(t, c.out, c.in, "bits=%d", c.bits)
	}
}

func TestIfaceAndNumberCodecs(t *testing.T) {
	k, err := ifaceCodec{}.Key([]byte("eth0"), 0)
	require.NoError(t, err)
	name, _ := ifaceCodec{}.Entry(k)
	require.Equal(t, []byte("eth0"), name)

	_, err = ifaceCodec{}.Key(nil, 0)
	require.ErrorIs(t, err, tables.ErrInvalidKey)

	n, err := numberCodec{}.Key(tables.NumberKey(42), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(42), n)
	key, _ := numberCodec{}.Entry(n)
	require.Equal(t, tables.NumberKey(42), key)

	_, ok := numberCodec{}.LookupKey([]byte{1, 2})
	require.False(t, ok)
}

func TestFlowCodecMasksLookups(t *testing.T) {
	codec := flowCodec{mask: tables.FlowDstAddr | tables.FlowDstPort}

	stored, _, err := tables.ParseKey(tables.KeyTypeFlow, "tcp,192.168.0.1:1000,10.0.0.1:443")
	require.NoError(t, err)
	query, _, err := tables.ParseKey(tables.KeyTypeFlow, "udp,192.168.0.2:2000,10.0.0.1:443")
	require.NoError(t, err)

	k, err := codec.Key(stored, 0)
	require.NoError(t, err)
	lk, ok := codec.LookupKey(query)
	require.True(t, ok)
	require.Equal(t, k, lk)
}

func TestModifyProtocol(t *testing.T) {
	algo := NewNumber()

	st, ti, err := algo.Init(tables.InitArgs{Config: NumberName + " size=2", Type: tables.KeyTypeNumber})
	require.NoError(t, err)
	require.Equal(t, NumberName+" size=2", algo.PrintConfig(st, ti))

	flags := tables.AdvisoryFlags(0)
	for v := range uint32(5) {
		e := &tables.TEntry{Key: tables.NumberKey(v), Value: tables.Value(v)}
		p, err := algo.PrepareAdd(e)
		require.NoError(t, err)
		result, err := algo.CommitAdd(st, ti, e, p)
		algo.FlushEntry(e, p)
		require.NoError(t, err)
		require.Equal(t, 1, result.Delta)
		flags |= result.Flags
	}
	require.Equal(t, modifyFlags(FlagGrow, 4), flags)
	require.Equal(t, 4, flagsCap(flags))

	// The new map is allocated before the table locks are taken.
	pl, err := algo.PrepareModify(flags)
	require.NoError(t, err)
	defer algo.FlushModify(pl)
	require.Equal(t, 4, pl.(*plan[uint32]).cap)
	require.NotNil(t, pl.(*plan[uint32]).entries)

	changed, err := algo.FillModify(st, ti, pl)
	require.NoError(t, err)
	require.True(t, changed)

	// Entries are copied into the new map before it is published.
	seen := 0
	pl.(*plan[uint32]).entries.Range(func(uint32, tables.Value) bool {
		seen++
		return true
	})
	require.Equal(t, 5, seen)

	// The configured size survives growth.
	require.Equal(t, NumberName+" size=2", algo.PrintConfig(st, ti))
}

func TestModifyWithoutCapacity(t *testing.T) {
	algo := NewNumber()

	st, ti, err := algo.Init(tables.InitArgs{Config: NumberName + " size=2", Type: tables.KeyTypeNumber})
	require.NoError(t, err)

	pl, err := algo.PrepareModify(FlagGrow)
	require.NoError(t, err)
	defer algo.FlushModify(pl)
	require.Nil(t, pl.(*plan[uint32]).entries)

	changed, err := algo.FillModify(st, ti, pl)
	require.NoError(t, err)
	require.False(t, changed)

	// A plan for the capacity the table already has is stale.
	stale, err := algo.PrepareModify(modifyFlags(FlagGrow, 2))
	require.NoError(t, err)
	defer algo.FlushModify(stale)

	changed, err = algo.FillModify(st, ti, stale)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = algo.PrepareModify(modifyFlags(FlagGrow, maxSize*2))
	require.ErrorIs(t, err, tables.ErrInvalidArgument)
}

func TestInitErrors(t *testing.T) {
	for _, config := range []string{
		AddrName + " size=0",
		AddrName + " size=many",
		AddrName + " buckets=4",
		AddrName + " masks=/24",
	} {
		_, _, err := NewAddr().Init(tables.InitArgs{Config: config, Type: tables.KeyTypeAddr})
		assert.ErrorIs(t, err, tables.ErrInvalidArgument, config)
	}

	st, ti, err := NewAddr().Init(tables.InitArgs{Config: AddrName, Type: tables.KeyTypeAddr})
	require.NoError(t, err)
	require.Equal(t, AddrName+" masks=/32,/128", NewAddr().PrintConfig(st, ti))
}
