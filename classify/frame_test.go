package classify

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
	}{
		{
			name: "tcp4",
			fields: Fields{
				Proto: 6,
				Src:   netip.MustParseAddrPort("10.0.0.1:1234"),
				Dst:   netip.MustParseAddrPort("10.0.0.2:80"),
			},
		},
		{
			name: "udp6",
			fields: Fields{
				Proto: 17,
				Src:   netip.MustParseAddrPort("[2001:db8::1]:5353"),
				Dst:   netip.MustParseAddrPort("[2001:db8::2]:53"),
			},
		},
		{
			name: "icmp4",
			fields: Fields{
				Proto: 1,
				Src:   netip.AddrPortFrom(netip.MustParseAddr("192.0.2.1"), 0),
				Dst:   netip.AddrPortFrom(netip.MustParseAddr("192.0.2.2"), 0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Frame(&tt.fields)
			require.NoError(t, err)

			fields, err := Extract(Decode(frame, 5))
			require.NoError(t, err)

			expect := tt.fields
			expect.InIface = 5
			assert.Equal(t, expect, fields)
		})
	}
}

func TestFrameErrors(t *testing.T) {
	_, err := Frame(&Fields{Proto: 6})
	assert.Error(t, err)

	_, err = Frame(&Fields{
		Proto: 6,
		Src:   netip.MustParseAddrPort("10.0.0.1:1"),
		Dst:   netip.MustParseAddrPort("[2001:db8::1]:1"),
	})
	assert.Error(t, err)
}
