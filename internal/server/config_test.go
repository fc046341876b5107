package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RetentionDays != 0 {
		t.Errorf("Default retention days should be 0, got %d", cfg.RetentionDays)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Default http addr should be :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":50051" {
		t.Errorf("Default grpc addr should be :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.DBPath != "safehome.db" {
		t.Errorf("Default DB path should be safehome.db, got %s", cfg.DBPath)
	}
	if cfg.RetentionInterval != time.Hour {
		t.Errorf("Default retention interval should be 1h, got %v", cfg.RetentionInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SAFEHOME_RETENTION_DAYS", "30")
	t.Setenv("SAFEHOME_DB_PATH", "/var/lib/safehome.db")
	t.Setenv("SAFEHOME_CALL_DELAY", "45s")
	t.Setenv("SAFEHOME_CORS_ORIGINS", "http://a.example,http://b.example")

	cfg := DefaultConfig()
	if err := ConfigFromEnv(&cfg); err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("Expected retention days 30, got %d", cfg.RetentionDays)
	}
	if cfg.DBPath != "/var/lib/safehome.db" {
		t.Errorf("Expected DB path from env, got %s", cfg.DBPath)
	}
	if cfg.CallDelay != 45*time.Second {
		t.Errorf("Expected call delay 45s, got %v", cfg.CallDelay)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.example" {
		t.Errorf("Unexpected CORS origins %v", cfg.CORSOrigins)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Unset variables should keep defaults, got %s", cfg.HTTPAddr)
	}

	// Non-numeric value is an error
	t.Setenv("SAFEHOME_RETENTION_DAYS", "abc")
	cfg = DefaultConfig()
	if err := ConfigFromEnv(&cfg); err == nil {
		t.Error("Non-numeric retention days should fail")
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "safehome.yaml")
	data := "http_addr: \":9090\"\nretention_days: 14\nretention_interval: 30m\ncookie_secure: true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SAFEHOME_RETENTION_DAYS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Expected http addr from file, got %s", cfg.HTTPAddr)
	}
	if cfg.RetentionInterval != 30*time.Minute {
		t.Errorf("Expected retention interval 30m, got %v", cfg.RetentionInterval)
	}
	if !cfg.CookieSecure {
		t.Error("Expected cookie_secure from file")
	}
	if cfg.RetentionDays != 3 {
		t.Errorf("Environment should override the file, got %d", cfg.RetentionDays)
	}
	if cfg.DBPath != "safehome.db" {
		t.Errorf("Missing keys should keep defaults, got %s", cfg.DBPath)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("SAFEHOME_RETENTION_DAYS", "-5")
	if _, err := Load(""); err == nil {
		t.Error("Negative retention days should fail validation")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Missing config file should fail")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	if err := os.WriteFile(file, []byte("SAFEHOME_COOKIE_NAME=from_dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SAFEHOME_COOKIE_NAME", "")
	os.Unsetenv("SAFEHOME_COOKIE_NAME")

	if err := loadDotEnv(file); err != nil {
		t.Fatalf("loadDotEnv failed: %v", err)
	}
	if got := os.Getenv("SAFEHOME_COOKIE_NAME"); got != "from_dotenv" {
		t.Errorf("Expected variable from .env, got %q", got)
	}

	if err := loadDotEnv(filepath.Join(dir, "absent.env")); err != nil {
		t.Errorf("Missing .env should be ignored: %v", err)
	}
}
