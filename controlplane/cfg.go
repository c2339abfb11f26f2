package controlplane

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/yatable/common/go/logging"
	"github.com/yanet-platform/yatable/tables"
)

type Config config
type config struct {
	// Logging configuration.
	Logging logging.Config `json:"logging" yaml:"logging"`
	// Server configuration.
	Server ServerConfig `json:"server" yaml:"server"`
	// Registry configuration.
	Registry RegistryConfig `json:"registry" yaml:"registry"`
	// Tables are created on startup, in order.
	Tables []TableConfig `json:"tables" yaml:"tables"`
}

// ServerConfig is the configuration for the gRPC server.
type ServerConfig struct {
	// Endpoint is the endpoint for the server to be exposed on.
	//
	// Endpoints starting with "/" are unix socket paths.
	Endpoint string `yaml:"endpoint"`
}

// RegistryConfig is the configuration for the table registry.
type RegistryConfig struct {
	// MaxTables is the initial table count ceiling.
	MaxTables uint32 `yaml:"max_tables"`
	// DumpBuffer is the largest table image DumpTable replies with.
	DumpBuffer datasize.ByteSize `yaml:"dump_buffer"`
}

// TableConfig describes a table created on startup.
type TableConfig struct {
	Name      string `yaml:"name"`
	Set       uint32 `yaml:"set"`
	Type      string `yaml:"type"`
	ValueType string `yaml:"value_type"`
	// Algorithm is an optional algorithm configuration string, for
	// example "addr:hash masks=/24,/64".
	Algorithm string `yaml:"algo"`
	Limit     uint32 `yaml:"limit"`
	FlowMask  string `yaml:"flow_mask"`
	// Entries map text keys onto values.
	Entries map[string]uint32 `yaml:"entries"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		Server: ServerConfig{
			Endpoint: "[::1]:8090",
		},
		Registry: RegistryConfig{
			MaxTables:  tables.DefaultMaxTables,
			DumpBuffer: 16 * datasize.MB,
		},
	}
}

// LoadConfig loads the configuration from the given path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	return cfg, nil
}

// UnmarshalYAML serves as a proxy for validation.
//
// To avoid infinite recursion, the validating wrapper casts itself to the
// private config struct. This allows the decoder to operate on it using the
// default behavior for handling Go structs without an unmarshal method.
func (m *Config) UnmarshalYAML(value *yaml.Node) error {
	err := value.Decode((*config)(m))
	if err != nil {
		return err
	}
	return m.Validate()
}

// Validate validates the configuration.
func (m *Config) Validate() error {
	if m.Server.Endpoint == "" {
		return fmt.Errorf("server endpoint is not configured")
	}
	if m.Registry.MaxTables == 0 || m.Registry.MaxTables > tables.MaxTables {
		return fmt.Errorf("registry max_tables must be in [1, %d], got %d", tables.MaxTables, m.Registry.MaxTables)
	}
	if m.Registry.DumpBuffer < datasize.ByteSize(tables.ExportHeaderSize) {
		return fmt.Errorf("registry dump_buffer must be at least %d bytes", tables.ExportHeaderSize)
	}

	seen := map[tables.Selector]struct{}{}
	for idx := range m.Tables {
		table := &m.Tables[idx]
		if _, err := table.Spec(); err != nil {
			return fmt.Errorf("invalid table #%d: %w", idx, err)
		}

		sel := tables.ByName(table.Set, table.Name)
		if _, ok := seen[sel]; ok {
			return fmt.Errorf("duplicate table %q in set %d", table.Name, table.Set)
		}
		seen[sel] = struct{}{}
	}
	if len(m.Tables) > int(m.Registry.MaxTables) {
		return fmt.Errorf("%d tables configured, but max_tables is %d", len(m.Tables), m.Registry.MaxTables)
	}

	return nil
}

// Spec converts the table configuration into its creation parameters.
//
// Errors wrap tables.ErrInvalidArgument.
func (m *TableConfig) Spec() (tables.TableSpec, error) {
	if m.Name == "" {
		return tables.TableSpec{}, fmt.Errorf("%w: table name is required", tables.ErrInvalidArgument)
	}

	typ, err := tables.ParseKeyType(m.Type)
	if err != nil {
		return tables.TableSpec{}, fmt.Errorf("%w: table %q: %v", tables.ErrInvalidArgument, m.Name, err)
	}
	valueType, err := tables.ParseValueType(m.ValueType)
	if err != nil {
		return tables.TableSpec{}, fmt.Errorf("%w: table %q: %v", tables.ErrInvalidArgument, m.Name, err)
	}
	flowMask, err := tables.ParseFlowMask(m.FlowMask)
	if err != nil {
		return tables.TableSpec{}, fmt.Errorf("%w: table %q: %v", tables.ErrInvalidArgument, m.Name, err)
	}

	return tables.TableSpec{
		Name:      m.Name,
		Set:       m.Set,
		Type:      typ,
		ValueType: valueType,
		Algorithm: m.Algorithm,
		Limit:     m.Limit,
		FlowMask:  flowMask,
	}, nil
}
