package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}

	if cfg.Refresh.Workers != 5 {
		t.Errorf("expected 5 workers, got %d", cfg.Refresh.Workers)
	}
	if cfg.Feed.HTTPTimeout != 30*time.Second {
		t.Errorf("expected 30s http timeout, got %v", cfg.Feed.HTTPTimeout)
	}
	if cfg.Database.DeletePolicy != "purge" {
		t.Errorf("expected purge delete policy, got %s", cfg.Database.DeletePolicy)
	}
	if cfg.Refresh.EventBufferSize != 64 {
		t.Errorf("expected event buffer of 64, got %d", cfg.Refresh.EventBufferSize)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[database]
path = "` + filepath.Join(dir, "feeds.db") + `"
delete_policy = "orphan"

[refresh]
workers = 2
interval = "1h"

[feed]
http_timeout = "10s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if cfg.Refresh.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Refresh.Workers)
	}
	if cfg.Refresh.Interval != time.Hour {
		t.Errorf("expected 1h interval, got %v", cfg.Refresh.Interval)
	}
	if cfg.Feed.HTTPTimeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Feed.HTTPTimeout)
	}
	if cfg.Database.DeletePolicy != "orphan" {
		t.Errorf("expected orphan policy, got %s", cfg.Database.DeletePolicy)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.Refresh.Workers = 0 }, true},
		{"negative body cap", func(c *Config) { c.Feed.MaxBodyBytes = -1 }, true},
		{"bad delete policy", func(c *Config) { c.Database.DeletePolicy = "archive" }, true},
		{"zero event buffer", func(c *Config) { c.Refresh.EventBufferSize = 0 }, true},
		{"orphan policy", func(c *Config) { c.Database.DeletePolicy = "orphan" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := defaultConfig()
	cfg.Refresh.Workers = 7
	cfg.Database.DeletePolicy = "orphan"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("saving config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reloading config: %v", err)
	}

	if loaded.Refresh.Workers != 7 {
		t.Errorf("expected 7 workers after reload, got %d", loaded.Refresh.Workers)
	}
	if loaded.Database.DeletePolicy != "orphan" {
		t.Errorf("expected orphan policy after reload, got %s", loaded.Database.DeletePolicy)
	}
}
