package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.App.Env != "dev" || c.App.LogLevel != "info" {
		t.Fatalf("app defaults wrong: %+v", c.App)
	}
	if c.Migrate.Concurrency != 5 {
		t.Fatalf("expected default concurrency 5, got %d", c.Migrate.Concurrency)
	}
	if c.DefaultRetryAfter() != 10*time.Second {
		t.Fatalf("expected default retry-after 10s, got %s", c.DefaultRetryAfter())
	}
	if c.WorkOS.BaseURL != "https://api.workos.com" {
		t.Fatalf("unexpected base url %q", c.WorkOS.BaseURL)
	}
	if c.RateWindow() != time.Minute || c.Rate.MaxRequests != 60 {
		t.Fatalf("rate defaults wrong: %+v", c.Rate)
	}
	if c.SQLGen.Table != "users" || c.SQLGen.SetColumn != "workos_user_id" {
		t.Fatalf("sqlgen defaults wrong: %+v", c.SQLGen)
	}
}

func TestLoad_YAMLValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  app_env: prod
  log_level: warn
auth0:
  domain: acme.us.auth0.com
  cache_ttl: 2m
workos:
  base_url: https://api.workos.test
migrate:
  concurrency: 12
  default_retry_after: 30s
  max_retries: 4
  ledger_check: true
rate:
  enabled: true
  window: 10s
  max_requests: 9
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.App.Env != "prod" || c.App.LogLevel != "warn" {
		t.Fatalf("app block: %+v", c.App)
	}
	if c.Migrate.Concurrency != 12 || c.Migrate.MaxRetries != 4 || !c.Migrate.LedgerCheck {
		t.Fatalf("migrate block: %+v", c.Migrate)
	}
	if c.DefaultRetryAfter() != 30*time.Second {
		t.Fatalf("retry-after: %s", c.DefaultRetryAfter())
	}
	if c.Auth0CacheTTL() != 2*time.Minute {
		t.Fatalf("cache ttl: %s", c.Auth0CacheTTL())
	}
	if !c.Rate.Enabled || c.RateWindow() != 10*time.Second || c.Rate.MaxRequests != 9 {
		t.Fatalf("rate block: %+v", c.Rate)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth0:\n  domain: from-yaml.auth0.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUTH0_DOMAIN", "from-env.auth0.com")
	t.Setenv("WORKOS_API_KEY", "sk_env")
	t.Setenv("MIGRATE_CONCURRENCY", "7")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Auth0.Domain != "from-env.auth0.com" {
		t.Fatalf("env did not override yaml: %q", c.Auth0.Domain)
	}
	if c.WorkOS.APIKey != "sk_env" {
		t.Fatalf("workos key: %q", c.WorkOS.APIKey)
	}
	if c.Migrate.Concurrency != 7 {
		t.Fatalf("concurrency: %d", c.Migrate.Concurrency)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("migrate:\n  default_retry_after: pronto\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	c.Migrate.Concurrency = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for concurrency 0")
	}
	c.Migrate.Concurrency = 3

	c.Auth0.Domain = "https://acme.us.auth0.com"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for domain with scheme")
	}
	c.Auth0.Domain = "acme.us.auth0.com"
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}
