package main

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yatable/controlplane/tablepb"
)

func TestTarget(t *testing.T) {
	assert.Equal(t, "unix:///run/yatable.sock", target("/run/yatable.sock"))
	assert.Equal(t, "[::1]:8090", target("[::1]:8090"))
}

func TestParseSelector(t *testing.T) {
	clientArgs.Set = 3
	t.Cleanup(func() { clientArgs.Set = 0 })

	tests := []struct {
		name   string
		input  string
		expect *tablepb.TableSelector
	}{
		{"name", "blocklist", &tablepb.TableSelector{Set: 3, Name: "blocklist"}},
		{"index", "#12", &tablepb.TableSelector{ID: 12}},
		{"numeric name", "42", &tablepb.TableSelector{Set: 3, Name: "42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := parseSelector(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, sel)
		})
	}

	for _, input := range []string{"#", "#x", "#70000"} {
		_, err := parseSelector(input)
		assert.Error(t, err, input)
	}
}

func TestByteSizeValue(t *testing.T) {
	size := 64 * datasize.KB
	v := byteSizeValue{&size}

	assert.Equal(t, "bytes", v.Type())
	assert.Equal(t, "64KB", v.String())

	require.NoError(t, v.Set("2MB"))
	assert.Equal(t, uint64(2<<20), size.Bytes())

	assert.Error(t, v.Set("lots"))
}
