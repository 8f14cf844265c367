package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/apigee/apigee-templater/internal/store"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoad(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PROJECT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.DataDir != "data" {
		t.Errorf("expected default data dir 'data', got %s", cfg.DataDir)
	}
	if cfg.Store.Backend != store.BackendFile {
		t.Errorf("expected default backend 'file', got %s", cfg.Store.Backend)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Generate.OutputDir != "generated" {
		t.Errorf("expected default output dir 'generated', got %s", cfg.Generate.OutputDir)
	}
	if cfg.Generate.Profile != "default" {
		t.Errorf("expected default profile, got %s", cfg.Generate.Profile)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("expected remote timeout 10s, got %v", cfg.Remote.Timeout)
	}
	if !cfg.Remote.Enabled {
		t.Error("expected remote source to be enabled by default")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	configContent := `
data_dir: /var/templater
store:
  backend: sql
  sql:
    driver: pgx
    dsn: postgres://localhost/templater
remote:
  enabled: false
generate:
  output_dir: dist
  project: my-project
server:
  port: 9090
  host: 0.0.0.0
  auth:
    jwt_secret: a-long-enough-secret
    token_ttl: 1h
    users:
      ci: $2a$10$abcdefghijklmnopqrstuv
log:
  level: debug
  development: true
`
	os.WriteFile("templater.yaml", []byte(configContent), 0644)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.DataDir != "/var/templater" {
		t.Errorf("expected data dir '/var/templater', got %s", cfg.DataDir)
	}
	if cfg.Store.SQL.Driver != store.DriverPgx {
		t.Errorf("expected pgx driver, got %s", cfg.Store.SQL.Driver)
	}
	if cfg.Store.SQL.Table != "templater_entities" {
		t.Errorf("expected default table, got %s", cfg.Store.SQL.Table)
	}
	if cfg.Generate.Project != "my-project" {
		t.Errorf("expected project 'my-project', got %s", cfg.Generate.Project)
	}
	if cfg.ServerAddress() != "0.0.0.0:9090" {
		t.Errorf("expected address '0.0.0.0:9090', got %s", cfg.ServerAddress())
	}
	auth := cfg.ServerAuth()
	if !auth.Enabled() || auth.TokenTTL != time.Hour || auth.Users["ci"] == "" {
		t.Errorf("unexpected auth config %+v", auth)
	}
	if !cfg.LoggingConfig().Development || cfg.LoggingConfig().Level != "debug" {
		t.Errorf("unexpected logging config %+v", cfg.LoggingConfig())
	}

	sc := cfg.StoreConfig(afero.NewMemMapFs())
	if sc.Backend != store.BackendSQL || sc.SQL.DSN != "postgres://localhost/templater" {
		t.Errorf("unexpected store config %+v", sc)
	}
	if sc.Remote != nil {
		t.Error("expected no remote source when disabled")
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, t.TempDir())
	path := filepath.Join(dir, "custom.yaml")
	os.WriteFile(path, []byte("store:\n  backend: redis\n  redis:\n    addr: redis:6379\n"), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Store.Redis.Addr != "redis:6379" {
		t.Errorf("expected redis addr 'redis:6379', got %s", cfg.Store.Redis.Addr)
	}
	if cfg.Store.Redis.Prefix != "templater:" {
		t.Errorf("expected default prefix, got %s", cfg.Store.Redis.Prefix)
	}

	sc := cfg.StoreConfig(nil)
	if sc.Remote == nil || sc.Remote.BaseURL == "" {
		t.Error("expected remote source to be configured")
	}
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TEMPLATER_SERVER_PORT", "7070")
	t.Setenv("TEMPLATER_GENERATE_PROJECT", "")
	t.Setenv("PROJECT", "env-project")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port from environment, got %d", cfg.Server.Port)
	}
	if cfg.Generate.Project != "env-project" {
		t.Errorf("expected project from PROJECT, got %s", cfg.Generate.Project)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DataDir: "data",
			Store:   StoreConfig{Backend: store.BackendFile},
			Remote:  RemoteConfig{Enabled: true, BaseURL: "https://example.com"},
			Server:  ServerConfig{Port: 8080},
			Log:     LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, true},
		{"file without data dir", func(c *Config) { c.DataDir = "" }, true},
		{"redis without addr", func(c *Config) { c.Store.Backend = store.BackendRedis }, true},
		{"sql bad driver", func(c *Config) {
			c.Store.Backend = store.BackendSQL
			c.Store.SQL = SQLConfig{Driver: "oracle", DSN: "x"}
		}, true},
		{"sql without dsn", func(c *Config) {
			c.Store.Backend = store.BackendSQL
			c.Store.SQL = SQLConfig{Driver: store.DriverSQLite}
		}, true},
		{"remote not http", func(c *Config) { c.Remote.BaseURL = "ftp://example.com" }, true},
		{"remote disabled", func(c *Config) { c.Remote = RemoteConfig{} }, false},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"short jwt secret", func(c *Config) { c.Server.Auth.JWTSecret = "short" }, true},
		{"jwt secret", func(c *Config) { c.Server.Auth.JWTSecret = "sixteen-chars-ok" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "templater.yml"), []byte(""), 0644)

	subDir := filepath.Join(tmpDir, "proxies", "nested")
	os.MkdirAll(subDir, 0755)
	chdir(t, subDir)

	dir, err := FindConfigDir()
	if err != nil {
		t.Fatalf("expected to find config dir, got error: %v", err)
	}

	resolvedDir, _ := filepath.EvalSymlinks(dir)
	resolvedTmpDir, _ := filepath.EvalSymlinks(tmpDir)
	if resolvedDir != resolvedTmpDir {
		t.Errorf("expected config dir %s, got %s", resolvedTmpDir, resolvedDir)
	}
}
