package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdirWithConfig writes a config.yaml into a temp directory and makes it
// the working directory so Load() finds it.
func chdirWithConfig(t *testing.T, yamlContent string) {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	chdirWithConfig(t, `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
flatmap:
  maps_root: "./testmaps"
`)

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.BaseURL != "http://localhost:4443" {
		t.Errorf("expected BaseURL=http://localhost:4443, got %s", cfg.BaseURL)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Flatmap.MapsRoot != "./testmaps" {
		t.Errorf("expected Flatmap.MapsRoot=./testmaps (from yaml), got %s", cfg.Flatmap.MapsRoot)
	}
}

func TestLoad_JWKSEndpointsParsed(t *testing.T) {
	chdirWithConfig(t, `
port: "4329"
env: "test"
auth:
  enable_verification: true
  jwks_endpoints: "https://a.example.com=https://a.example.com/jwks.json, https://b.example.com=https://b.example.com/jwks.json"
`)

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Auth.JWKSEndpoints) != 2 {
		t.Fatalf("expected 2 JWKS endpoints, got %d", len(cfg.Auth.JWKSEndpoints))
	}
	if cfg.Auth.JWKSEndpoints["https://a.example.com"] != "https://a.example.com/jwks.json" {
		t.Errorf("unexpected endpoint map: %v", cfg.Auth.JWKSEndpoints)
	}
}

func TestLoad_TLSMismatchRejected(t *testing.T) {
	chdirWithConfig(t, `
port: "4329"
env: "test"
tls_cert_path: "/nonexistent/cert.pem"
`)

	os.Unsetenv("TLS_KEY_PATH")

	if _, err := Load("dev"); err == nil {
		t.Error("expected error when only tls_cert_path is set")
	}
}

func TestConnectionString(t *testing.T) {
	dbCfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "flatmap",
		Password: "secret",
		Database: "flatmap_engine",
		SSLMode:  "disable",
	}

	want := "host=localhost port=5432 user=flatmap password=secret dbname=flatmap_engine sslmode=disable"
	if got := dbCfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
