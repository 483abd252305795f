package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// chdirTemp is the pre-Go-1.24 equivalent of t.Chdir.
func chdirTemp(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	chdirTemp(t, t.TempDir())

	cfg := LoadConfig("")
	if cfg.Server.Address != ":8080" {
		t.Fatalf("server.address default: %q", cfg.Server.Address)
	}
	if cfg.Relay.BaseURL != "http://127.0.0.1:8000" {
		t.Fatalf("relay.base_url default: %q", cfg.Relay.BaseURL)
	}
	if cfg.Storage.SQLite.Path != "medicine.db" {
		t.Fatalf("storage.sqlite.path default: %q", cfg.Storage.SQLite.Path)
	}
	if cfg.Agent.MaxSteps != 50 || cfg.Agent.MaxActionsPerStep != 5 {
		t.Fatalf("agent defaults: %+v", cfg.Agent)
	}
	if cfg.Session.Store != "inmemory" || cfg.Session.TTL != 2*time.Hour {
		t.Fatalf("session defaults: %+v", cfg.Session)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("server:\n  address: \":9090\"\nllm:\n  provider: ollama\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := LoadConfig(path)
	if cfg.Server.Address != ":9090" {
		t.Fatalf("expected file value, got %q", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Fatalf("expected ollama provider, got %q", cfg.LLM.Provider)
	}
	// Values the file omits keep their defaults.
	if cfg.Relay.Address != ":8000" {
		t.Fatalf("expected default relay address, got %q", cfg.Relay.Address)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	viper.Reset()
	chdirTemp(t, t.TempDir())
	t.Setenv("MEDICINEDB_STORAGE_SQLITE_PATH", "/tmp/other.db")

	cfg := LoadConfig("")
	if cfg.Storage.SQLite.Path != "/tmp/other.db" {
		t.Fatalf("expected env override, got %q", cfg.Storage.SQLite.Path)
	}
}
