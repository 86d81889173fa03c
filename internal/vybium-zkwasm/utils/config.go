package utils

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"

	"github.com/naoina/toml"
)

// Circuit size bounds accepted by a session
const (
	MinK = 18
	MaxK = 26
)

// Supported session settings
var (
	Fields     = []string{"bn254", "bls12-381"}
	Strategies = []string{"trivial", "continuation"}
	Backends   = []string{"memory", "leveldb", "pebble"}
)

// Config represents the configuration of a proving session
type Config struct {
	// Name prefixes every artifact of the session
	Name string `json:"name"`

	// Circuit parameters
	K     uint32 `json:"k"`
	Field string `json:"field"` // "bn254" or "bls12-381"

	// Continuation parameters
	Strategy string `json:"strategy"` // "trivial" or "continuation"

	// Slice backend
	Backend     string `json:"backend"` // "memory", "leveldb" or "pebble"
	BackendPath string `json:"backend_path,omitempty"`
	CacheSize   int    `json:"cache_size"`

	// Directories
	ParamsDir string `json:"params_dir"`
	OutputDir string `json:"output_dir"`

	// Host environment
	HostFunctions []string `json:"host_functions,omitempty"`
	PublicInputs  []uint64 `json:"public_inputs,omitempty"`
	PrivateInputs []uint64 `json:"private_inputs,omitempty"`
	ContextInputs []uint64 `json:"context_inputs,omitempty"`

	// DumpTables writes the per-slice event, frame and host call tables
	DumpTables bool `json:"dump_tables"`
}

// DefaultConfig returns a single-slice session at the smallest circuit size
func DefaultConfig() *Config {
	return &Config{
		Name:          "zkwasm",
		K:             MinK,
		Field:         "bn254",
		Strategy:      "trivial",
		Backend:       "memory",
		CacheSize:     16,
		ParamsDir:     "params",
		OutputDir:     "output",
		HostFunctions: []string{"wasm_input", "wasm_read_context", "wasm_write_context", "require"},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name must not be empty")
	}

	if c.K < MinK || c.K > MaxK {
		return fmt.Errorf("k must be in [%d, %d], got %d", MinK, MaxK, c.K)
	}

	if !slices.Contains(Fields, c.Field) {
		return fmt.Errorf("field must be one of %v, got '%s'", Fields, c.Field)
	}

	if !slices.Contains(Strategies, c.Strategy) {
		return fmt.Errorf("strategy must be one of %v, got '%s'", Strategies, c.Strategy)
	}

	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("backend must be one of %v, got '%s'", Backends, c.Backend)
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}

	return nil
}

// WithName sets the artifact name
func (c *Config) WithName(name string) *Config {
	c.Name = name
	return c
}

// WithK sets the circuit size
func (c *Config) WithK(k uint32) *Config {
	c.K = k
	return c
}

// WithField sets the scalar field
func (c *Config) WithField(field string) *Config {
	c.Field = field
	return c
}

// WithStrategy sets the post image strategy
func (c *Config) WithStrategy(strategy string) *Config {
	c.Strategy = strategy
	return c
}

// WithBackend sets the slice backend and its location
func (c *Config) WithBackend(backend, path string) *Config {
	c.Backend = backend
	c.BackendPath = path
	return c
}

// WithOutputDir sets the artifact directory
func (c *Config) WithOutputDir(dir string) *Config {
	c.OutputDir = dir
	return c
}

// WithParamsDir sets the parameter directory
func (c *Config) WithParamsDir(dir string) *Config {
	c.ParamsDir = dir
	return c
}

// WithInputs sets the public, private and context inputs
func (c *Config) WithInputs(public, private, context []uint64) *Config {
	c.PublicInputs = public
	c.PrivateInputs = private
	c.ContextInputs = context
	return c
}

// WithHostFunctions sets the enabled host functions
func (c *Config) WithHostFunctions(names ...string) *Config {
	c.HostFunctions = names
	return c
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	clone.HostFunctions = slices.Clone(c.HostFunctions)
	clone.PublicInputs = slices.Clone(c.PublicInputs)
	clone.PrivateInputs = slices.Clone(c.PrivateInputs)
	clone.ContextInputs = slices.Clone(c.ContextInputs)
	return &clone
}

// TOML keys are the Go field names; unknown keys are rejected.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := DefaultConfig()
	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	var lineErr *toml.LineError
	if errors.As(err, &lineErr) {
		err = errors.New(path + ", " + err.Error())
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as {name}.zkwasm.config in dir.
func (c *Config) Save(dir string) (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(dir, ConfigFileName(c.Name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

// ReadConfig reads a configuration written by Save.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, nil
}
