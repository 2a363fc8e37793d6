package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PLANNER_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected addr: %q", cfg.HTTP.Addr)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Fatalf("unexpected driver: %q", cfg.Storage.Driver)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %s", cfg.Auth.AccessTTL)
	}
	if cfg.Search.InlineLimit != 10 {
		t.Fatalf("unexpected inline limit: %d", cfg.Search.InlineLimit)
	}
	if cfg.NATS.URL != "" {
		t.Fatalf("expected change feed disabled by default, got %q", cfg.NATS.URL)
	}
	if cfg.Client.APIBase != "http://localhost:8080" || cfg.Client.Timeout != 10*time.Second {
		t.Fatalf("unexpected client config: %+v", cfg.Client)
	}
}

func TestLoad_ClientAPIBaseTrimmed(t *testing.T) {
	t.Setenv("PLANNER_CONFIG", "")
	t.Setenv("PLANNER_CLIENT_API_BASE", " https://planner.example.com/ ")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Client.APIBase != "https://planner.example.com" {
		t.Fatalf("unexpected api base: %q", cfg.Client.APIBase)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PLANNER_CONFIG", "")
	t.Setenv("PLANNER_HTTP_ADDR", ":9090")
	t.Setenv("PLANNER_STORAGE_DRIVER", "Postgres")
	t.Setenv("PLANNER_AUTH_ACCESS_TTL", "1h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected addr: %q", cfg.HTTP.Addr)
	}
	if cfg.Storage.Driver != DriverPostgres {
		t.Fatalf("unexpected driver: %q", cfg.Storage.Driver)
	}
	if cfg.Auth.AccessTTL != time.Hour {
		t.Fatalf("unexpected access ttl: %s", cfg.Auth.AccessTTL)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("PLANNER_CONFIG", "")
	path := filepath.Join(t.TempDir(), "planner.yaml")
	content := "storage:\n  driver: sqlite\n  sqlite_path: /tmp/p.db\nsearch:\n  inline_limit: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Storage.SQLitePath != "/tmp/p.db" || cfg.Search.InlineLimit != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for explicit missing file")
	}
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("PLANNER_CONFIG", "")
	t.Setenv("PLANNER_STORAGE_DRIVER", "mongo")

	_, err := Load("")
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}
