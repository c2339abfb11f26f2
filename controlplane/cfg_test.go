package controlplane

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/yanet-platform/yatable/tables"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "yatable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
server:
  endpoint: /run/yatable/yatable.sock
registry:
  max_tables: 1024
  dump_buffer: 4MB
tables:
  - name: blocklist
    type: addr
    limit: 1000
    entries:
      10.0.0.0/8: 1
      2001:db8::/32: 2
  - name: flows
    set: 1
    type: flow
    value_type: tag
    algo: flow:hash size=1024
    flow_mask: dst-ip,dst-port
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, zapcore.DebugLevel, cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/run/yatable/yatable.sock", cfg.Server.Endpoint)
	assert.Equal(t, uint32(1024), cfg.Registry.MaxTables)
	assert.Equal(t, 4*datasize.MB, cfg.Registry.DumpBuffer)
	require.Len(t, cfg.Tables, 2)
	assert.Equal(t, map[string]uint32{"10.0.0.0/8": 1, "2001:db8::/32": 2}, cfg.Tables[0].Entries)

	spec, err := cfg.Tables[1].Spec()
	require.NoError(t, err)
	assert.Equal(t, tables.TableSpec{
		Name:      "flows",
		Set:       1,
		Type:      tables.KeyTypeFlow,
		ValueType: tables.ValueTypeTag,
		Algorithm: "flow:hash size=1024",
		FlowMask:  tables.FlowDstAddr | tables.FlowDstPort,
	}, spec)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logging:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, zapcore.WarnLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
	assert.Equal(t, DefaultConfig().Registry, cfg.Registry)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty endpoint", "server:\n  endpoint: \"\"\n"},
		{"zero max tables", "registry:\n  max_tables: 0\n"},
		{"too many max tables", "registry:\n  max_tables: 70000\n"},
		{"tiny dump buffer", "registry:\n  dump_buffer: 8B\n"},
		{"unknown key type", "tables:\n  - name: t\n    type: mac\n"},
		{"unknown value type", "tables:\n  - name: t\n    type: addr\n    value_type: color\n"},
		{"unknown flow field", "tables:\n  - name: t\n    type: flow\n    flow_mask: vlan\n"},
		{"missing name", "tables:\n  - type: addr\n"},
		{"duplicate table", "tables:\n  - name: t\n    type: addr\n  - name: t\n    type: number\n"},
		{"more tables than indices", "registry:\n  max_tables: 1\ntables:\n  - name: a\n    type: addr\n  - name: b\n    type: addr\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.data))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
