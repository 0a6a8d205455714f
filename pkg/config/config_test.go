package config

import (
	"os"
	"testing"
	"time"
)

type testConfig struct {
	Name     string        `yaml:"name" env:"APP_NAME"`
	Port     int           `yaml:"port" env:"APP_PORT"`
	Debug    bool          `yaml:"debug" env:"APP_DEBUG"`
	Timeout  time.Duration `yaml:"timeout" env:"APP_TIMEOUT"`
	Sports   []string      `yaml:"sports" env:"APP_SPORTS"`
	Database struct {
		DSN string `yaml:"dsn" env:"DATABASE_URL"`
	} `yaml:"database"`
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestLoad(t *testing.T) {
	path := writeTemp(t, `
name: sports-digest
port: 8080
debug: false
timeout: 15s
sports: [soccer, rugby]
database:
  dsn: data/test.db
`)

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "sports-digest" {
		t.Fatalf("expected 'sports-digest', got '%s'", cfg.Name)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected 8080, got %d", cfg.Port)
	}
	if cfg.Debug {
		t.Fatal("expected debug to be false")
	}
	if cfg.Timeout != 15*time.Second {
		t.Fatalf("expected 15s, got %s", cfg.Timeout)
	}
	if len(cfg.Sports) != 2 || cfg.Sports[1] != "rugby" {
		t.Fatalf("unexpected sports: %v", cfg.Sports)
	}
	if cfg.Database.DSN != "data/test.db" {
		t.Fatalf("unexpected dsn: %s", cfg.Database.DSN)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeTemp(t, `
name: default
port: 3000
timeout: 1s
sports: [soccer]
`)

	t.Setenv("APP_NAME", "from-env")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("APP_TIMEOUT", "2m")
	t.Setenv("APP_SPORTS", "tennis, golf,,boxing")
	t.Setenv("DATABASE_URL", "postgres://localhost/sports")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "from-env" {
		t.Fatalf("expected 'from-env', got '%s'", cfg.Name)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected 9090, got %d", cfg.Port)
	}
	if !cfg.Debug {
		t.Fatal("expected debug to be true from env")
	}
	if cfg.Timeout != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", cfg.Timeout)
	}
	if len(cfg.Sports) != 3 || cfg.Sports[2] != "boxing" {
		t.Fatalf("unexpected sports: %v", cfg.Sports)
	}
	if cfg.Database.DSN != "postgres://localhost/sports" {
		t.Fatalf("nested override not applied: %s", cfg.Database.DSN)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("DIGEST_NAME", "weekly")
	path := writeTemp(t, "name: ${DIGEST_NAME}\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "weekly" {
		t.Fatalf("expected expanded name, got '%s'", cfg.Name)
	}
}

func TestInvalidDurationIgnored(t *testing.T) {
	path := writeTemp(t, "timeout: 5s\n")
	t.Setenv("APP_TIMEOUT", "soon")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("expected file value to survive bad env, got %s", cfg.Timeout)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := LoadOrDefault("/nonexistent/config.yaml", &cfg); err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	// Should use zero values
	if cfg.Name != "" {
		t.Fatalf("expected empty name, got '%s'", cfg.Name)
	}
}

func TestLoadOrDefault_MissingFileKeepsDefaultsAndEnv(t *testing.T) {
	t.Setenv("APP_PORT", "7070")
	cfg := testConfig{Name: "preset", Port: 1}
	if err := LoadOrDefault("/nonexistent/config.yaml", &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "preset" {
		t.Fatalf("expected preset name to survive, got '%s'", cfg.Name)
	}
	if cfg.Port != 7070 {
		t.Fatalf("expected env port, got %d", cfg.Port)
	}
}
