package utils

import (
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig() should be valid: %v", err)
	}
	if config.K != MinK {
		t.Errorf("expected k=%d, got %d", MinK, config.K)
	}
}

// TestConfigValidate tests the Validate method
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"largest k", func(c *Config) { c.K = MaxK }, false},
		{"k too small", func(c *Config) { c.K = MinK - 1 }, true},
		{"k too large", func(c *Config) { c.K = MaxK + 1 }, true},
		{"empty name", func(c *Config) { c.Name = "" }, true},
		{"unknown field", func(c *Config) { c.Field = "goldilocks" }, true},
		{"bls12-381", func(c *Config) { c.Field = "bls12-381" }, false},
		{"unknown strategy", func(c *Config) { c.Strategy = "rollup" }, true},
		{"continuation", func(c *Config) { c.Strategy = "continuation" }, false},
		{"unknown backend", func(c *Config) { c.Backend = "redis" }, true},
		{"zero cache", func(c *Config) { c.CacheSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestConfigBuilders tests the WithX methods and Clone
func TestConfigBuilders(t *testing.T) {
	c := DefaultConfig().
		WithName("fib").
		WithK(20).
		WithField("bls12-381").
		WithStrategy("continuation").
		WithBackend("pebble", "/tmp/slices").
		WithOutputDir("out").
		WithParamsDir("params").
		WithInputs([]uint64{1}, []uint64{2, 3}, nil).
		WithHostFunctions("wasm_input")

	if c.Name != "fib" || c.K != 20 || c.Field != "bls12-381" || c.Strategy != "continuation" {
		t.Errorf("builders not applied: %+v", c)
	}
	if c.Backend != "pebble" || c.BackendPath != "/tmp/slices" {
		t.Errorf("backend not applied: %s %s", c.Backend, c.BackendPath)
	}

	clone := c.Clone()
	if !reflect.DeepEqual(c, clone) {
		t.Fatal("clone differs from original")
	}
	clone.PrivateInputs[0] = 9
	clone.HostFunctions[0] = "require"
	if c.PrivateInputs[0] != 2 || c.HostFunctions[0] != "wasm_input" {
		t.Error("clone shares slices with the original")
	}
}

// TestLoadConfig tests reading a TOML file over the defaults
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.toml")
	content := "Name = \"fib\"\nK = 22\nStrategy = \"continuation\"\nPublicInputs = [1, 2]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Name != "fib" || c.K != 22 || c.Strategy != "continuation" {
		t.Errorf("unexpected config %+v", c)
	}
	if !reflect.DeepEqual(c.PublicInputs, []uint64{1, 2}) {
		t.Errorf("unexpected public inputs %v", c.PublicInputs)
	}
	if c.Backend != "memory" {
		t.Error("unset keys should keep their defaults")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("Unknown = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Error("unknown keys should be rejected")
	}
}

// TestSaveConfig tests the JSON round trip of {name}.zkwasm.config
func TestSaveConfig(t *testing.T) {
	dir := t.TempDir()
	c := DefaultConfig().WithName("fib").WithK(19)
	path, err := c.Save(dir)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Base(path) != "fib.zkwasm.config" {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}
	loaded, err := ReadConfig(path)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if !reflect.DeepEqual(c, loaded) {
		t.Errorf("config changed on disk: %+v != %+v", loaded, c)
	}
}

// TestArtifactNames tests the artifact naming scheme
func TestArtifactNames(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{ParamsFileName(18), "K18.params"},
		{ConfigFileName("fib"), "fib.zkwasm.config"},
		{CircuitOngoingFileName("fib"), "fib.circuit.ongoing.data"},
		{CircuitFinalizedFileName("fib"), "fib.circuit.finalized.data"},
		{LoadInfoFileName("fib"), "fib.loadinfo.json"},
		{WitnessFileName("fib", 2), "fib.2.witness.json"},
		{InstanceFileName("fib", 0), "fib.0.instance.json"},
		{TranscriptFileName("fib", 1), "fib.1.transcript.json"},
		{EventTableFileName("fib", 3), "fib.etable.3.json"},
		{FrameTableFileName("fib", 3), "fib.frame_table.3.data"},
		{ExternalHostTableFileName(4), "external_host_table.4.json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, tt.got)
		}
	}
}

// TestPowersOfTwo tests CeilLog2 and NextPowerOfTwo
func TestPowersOfTwo(t *testing.T) {
	tests := []struct {
		n, log, next int
	}{
		{0, 0, 1},
		{1, 0, 1},
		{2, 1, 2},
		{3, 2, 4},
		{1024, 10, 1024},
		{1025, 11, 2048},
	}
	for _, tt := range tests {
		if got := CeilLog2(tt.n); got != tt.log {
			t.Errorf("CeilLog2(%d) = %d, want %d", tt.n, got, tt.log)
		}
		if got := NextPowerOfTwo(tt.n); got != tt.next {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.n, got, tt.next)
		}
	}
}

// TestChannelDeterminism tests that replayed transcripts agree
func TestChannelDeterminism(t *testing.T) {
	modulus := big.NewInt(2147483647)
	a, b := NewChannel(), NewChannel()
	for _, ch := range []*Channel{a, b} {
		ch.Send("pre", []byte{1, 2, 3})
	}
	x := a.ReceiveChallenge("alpha", modulus)
	y := b.ReceiveChallenge("alpha", modulus)
	if x.Cmp(y) != 0 {
		t.Fatalf("challenges differ: %s != %s", x, y)
	}
	if x.Sign() <= 0 || x.Cmp(modulus) >= 0 {
		t.Errorf("challenge %s out of range", x)
	}
	if len(a.Proof()) != 2 {
		t.Errorf("expected 2 transcript messages, got %d", len(a.Proof()))
	}

	b.Send("post", []byte{4})
	if a.ReceiveChallenge("beta", modulus).Cmp(b.ReceiveChallenge("beta", modulus)) == 0 {
		t.Error("diverging transcripts should give different challenges")
	}
}
