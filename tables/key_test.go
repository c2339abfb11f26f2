package tables_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yatable/tables"
)

func TestParseKey(t *testing.T) {
	cases := []struct {
		typ     tables.KeyType
		in      string
		key     []byte
		maskLen uint8
		out     string
	}{
		{tables.KeyTypeAddr, "10.0.0.0/24", []byte{10, 0, 0, 0}, 24, "10.0.0.0/24"},
		{tables.KeyTypeAddr, "10.0.0.77/24", []byte{10, 0, 0, 0}, 24, "10.0.0.0/24"},
		{tables.KeyTypeAddr, "10.0.0.1", []byte{10, 0, 0, 1}, 32, "10.0.0.1/32"},
		{tables.KeyTypeAddr, "::ffff:10.0.0.0/120", []byte{10, 0, 0, 0}, 24, "10.0.0.0/24"},
		{tables.KeyTypeAddr, "2001:db8::/32", netip.MustParseAddr("2001:db8::").AsSlice(), 32, "2001:db8::/32"},
		{tables.KeyTypeIface, "eth0", []byte("eth0"), 0, "eth0"},
		{tables.KeyTypeNumber, "42", []byte{0, 0, 0, 42}, 0, "42"},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			key, maskLen, err := tables.ParseKey(c.typ, c.in)
			require.NoError(t, err)
			assert.Equal(t, c.key, key)
			assert.Equal(t, c.maskLen, maskLen)
			assert.Equal(t, c.out, tables.FormatKey(c.typ, key, maskLen))
		})
	}
}

func TestParseKeyErrors(t *testing.T) {
	cases := []struct {
		typ tables.KeyType
		in  string
	}{
		{tables.KeyTypeAddr, "10.0.0.0/33"},
		{tables.KeyTypeAddr, "example.com"},
		{tables.KeyTypeIface, ""},
		{tables.KeyTypeIface, "a-very-long-interface-name"},
		{tables.KeyTypeNumber, "-1"},
		{tables.KeyTypeNumber, "4294967296"},
		{tables.KeyTypeFlow, "tcp,10.0.0.1:1"},
		{tables.KeyTypeFlow, "sctp,10.0.0.1:1,10.0.0.2:2"},
		{tables.KeyTypeFlow, "tcp,10.0.0.1:1,[::1]:2"},
		{tables.KeyTypeInvalid, "x"},
	}

	for _, c := range cases {
		t.Run(c.typ.String()+"/"+c.in, func(t *testing.T) {
			_, _, err := tables.ParseKey(c.typ, c.in)
			require.ErrorIs(t, err, tables.ErrInvalidKey)
		})
	}
}

func TestFlowKey(t *testing.T) {
	key, _, err := tables.ParseKey(tables.KeyTypeFlow, "tcp,10.0.0.1:1234,10.0.0.2:80")
	require.NoError(t, err)
	require.Len(t, key, tables.FlowKeySize)
	require.Equal(t, "tcp,10.0.0.1:1234,10.0.0.2:80", tables.FormatKey(tables.KeyTypeFlow, key, 0))

	flow, err := tables.DecodeFlowKey(key)
	require.NoError(t, err)
	require.Equal(t, tables.FlowKey{
		Proto: 6,
		Src:   netip.MustParseAddrPort("10.0.0.1:1234"),
		Dst:   netip.MustParseAddrPort("10.0.0.2:80"),
	}, flow)

	tables.MaskFlowKey(key, tables.FlowDstAddr|tables.FlowDstPort)
	flow, err = tables.DecodeFlowKey(key)
	require.NoError(t, err)
	require.Zero(t, flow.Proto)
	require.Zero(t, flow.Src.Port())
	require.Equal(t, netip.MustParseAddrPort("10.0.0.2:80"), flow.Dst)

	key, _, err = tables.ParseKey(tables.KeyTypeFlow, "17,[2001:db8::1]:53,[2001:db8::2]:5353")
	require.NoError(t, err)
	require.Equal(t, "udp,[2001:db8::1]:53,[2001:db8::2]:5353", tables.FormatKey(tables.KeyTypeFlow, key, 0))
}

func TestValidateKey(t *testing.T) {
	require.NoError(t, tables.ValidateKey(tables.KeyTypeAddr, []byte{10, 0, 0, 0}, 8))
	require.ErrorIs(t, tables.ValidateKey(tables.KeyTypeAddr, []byte{10, 0, 0, 0}, 33), tables.ErrInvalidKey)
	require.ErrorIs(t, tables.ValidateKey(tables.KeyTypeAddr, make([]byte, 5), 0), tables.ErrInvalidKey)
	require.ErrorIs(t, tables.ValidateKey(tables.KeyTypeIface, []byte("eth\x000"), 0), tables.ErrInvalidKey)
	require.ErrorIs(t, tables.ValidateKey(tables.KeyTypeNumber, []byte{1}, 0), tables.ErrInvalidKey)
	require.ErrorIs(t, tables.ValidateKey(tables.KeyTypeFlow, make([]byte, tables.FlowKeySize), 0), tables.ErrInvalidKey)
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code tables.Code
	}{
		{nil, tables.CodeOK},
		{tables.ErrNotFound, tables.CodeNotFound},
		{&tables.BufferTooSmallError{Required: 10}, tables.CodeBufferTooSmall},
		{assert.AnError, tables.CodeUnknown},
	}

	for _, c := range cases {
		require.Equal(t, c.code, tables.CodeOf(c.err))
	}

	require.Equal(t, "TooManyEntries", tables.CodeTooManyEntries.String())
	require.Equal(t, "Code(200)", tables.Code(200).String())
}
