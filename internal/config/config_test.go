package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir available: %v", err)
	}
	cases := []struct {
		in   string
		want string
	}{
		{"~/.tokenledger", filepath.Join(home, ".tokenledger")},
		{"/var/lib/tokenledger", "/var/lib/tokenledger"},
		{"relative/dir", "relative/dir"},
	}
	for _, tc := range cases {
		if got := expandPath(tc.in); got != tc.want {
			t.Errorf("expandPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	dir, err := os.MkdirTemp("", "tokenledger-config")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestLoadRoundTripsCustomValues(t *testing.T) {
	dir, err := os.MkdirTemp("", "tokenledger-config")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := DefaultConfig()
	cfg.Storage.Backend = BackendMemory
	cfg.Logging.Level = "debug"
	if err := cfg.Save(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Storage.Backend != BackendMemory {
		t.Errorf("backend = %q, want memory", loaded.Storage.Backend)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", loaded.Logging.Level)
	}
}

func TestSaveWritesRestrictivePermissions(t *testing.T) {
	dir, err := os.MkdirTemp("", "tokenledger-config")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, ConfigFileName)
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}
