package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

func TestParseInputs(t *testing.T) {
	got, err := parseInputs([]string{"1", "0x10", "18446744073709551615"})
	if err != nil {
		t.Fatalf("parseInputs failed: %v", err)
	}
	if got[0] != 1 || got[1] != 16 || got[2] != ^uint64(0) {
		t.Errorf("unexpected inputs %v", got)
	}
	if _, err := parseInputs([]string{"-1"}); err == nil {
		t.Error("negative input should be rejected")
	}
}

func TestSessionConfigFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.toml")
	if err := writeFile(path, "Name = \"fromfile\"\nK = 20\nStrategy = \"continuation\"\n"); err != nil {
		t.Fatal(err)
	}

	if err := rootCmd.ParseFlags([]string{"--config", path, "--k", "22", "--public", "1,0x2"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	config, err := sessionConfig(rootCmd)
	if err != nil {
		t.Fatalf("sessionConfig failed: %v", err)
	}
	if config.Name != "fromfile" || config.Strategy != "continuation" {
		t.Errorf("file settings lost: %+v", config)
	}
	if config.K != 22 {
		t.Errorf("flag should override file, got k=%d", config.K)
	}
	if len(config.PublicInputs) != 2 || config.PublicInputs[1] != 2 {
		t.Errorf("unexpected public inputs %v", config.PublicInputs)
	}
	if config.Field != utils.DefaultConfig().Field {
		t.Errorf("unset flag should keep the default, got %s", config.Field)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
