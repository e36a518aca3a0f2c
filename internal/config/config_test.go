package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validProvider(dir string) ProviderConfig {
	return ProviderConfig{
		Name:          "acme-bank",
		Grant:         GrantAuthCode,
		BaseURL:       "https://api.example-bank.com",
		ClientID:      "id",
		ClientSecret:  "secret",
		AuthHost:      "auth.example-bank.com",
		TokenPath:     filepath.Join(dir, "token.json"),
		StatePath:     filepath.Join(dir, "state.json"),
		OutputDir:     filepath.Join(dir, "out"),
		HistoryDays:   90,
		FetchAccounts: true,
		SyncInterval:  15 * time.Minute,
	}
}

func TestDefaultConfigHasSensibleLogging(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if len(cfg.Providers) != 0 {
		t.Errorf("expected no providers by default, got %d", len(cfg.Providers))
	}
}

func TestValidateAcceptsWellFormedProvider(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Providers: []ProviderConfig{validProvider(dir)}, Logging: LoggingConfig{Level: "info", Format: "json"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsOutputDirEqualToStatePath(t *testing.T) {
	dir := t.TempDir()
	p := validProvider(dir)
	p.StatePath = p.OutputDir
	cfg := &Config{Providers: []ProviderConfig{p}, Logging: LoggingConfig{Level: "info", Format: "json"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a validation error when output_dir equals state_path")
	}
}

func TestValidateRejectsMissingAuthCodeCredentials(t *testing.T) {
	dir := t.TempDir()
	p := validProvider(dir)
	p.ClientSecret = ""
	cfg := &Config{Providers: []ProviderConfig{p}, Logging: LoggingConfig{Level: "info", Format: "json"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a validation error for missing client_secret")
	}
}

func TestValidateRejectsDuplicateProviderNames(t *testing.T) {
	dir := t.TempDir()
	p1 := validProvider(dir)
	p2 := validProvider(dir)
	p2.OutputDir = filepath.Join(dir, "out2")
	p2.TokenPath = filepath.Join(dir, "token2.json")
	p2.StatePath = filepath.Join(dir, "state2.json")
	cfg := &Config{Providers: []ProviderConfig{p1, p2}, Logging: LoggingConfig{Level: "info", Format: "json"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a validation error for duplicate provider names")
	}
}

func TestLoadReadsYAMLFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bankmirror.yaml")
	contents := `
logging:
  level: warn
  format: console
providers:
  - name: acme-bank
    grant: authcode
    base_url: https://api.example-bank.com
    client_id: id
    client_secret: secret
    auth_host: auth.example-bank.com
    token_path: ` + filepath.Join(dir, "token.json") + `
    state_path: ` + filepath.Join(dir, "state.json") + `
    output_dir: ` + filepath.Join(dir, "out") + `
    history_days: 90
    fetch_accounts: true
`
	if err := os.WriteFile(yamlPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, yamlPath)
	t.Setenv("BANKMIRROR_LOG_LEVEL", "error")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error (env override should win)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console (from file)", cfg.Logging.Format)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(cfg.Providers))
	}
	p := cfg.Providers[0]
	if p.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %v, want the 15m default to be applied", p.SyncInterval)
	}
	if p.MonthStrategy != MonthStrategyPerMonth {
		t.Errorf("MonthStrategy = %q, want the per_month default to be applied", p.MonthStrategy)
	}
}
