// Package config carga la configuración de mudanza desde YAML + overrides por env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Auth0 struct {
		// Domain del tenant, ej. "acme.us.auth0.com" (sin esquema).
		Domain string `yaml:"domain"`
		// Token de Management API (normalmente via env AUTH0_MGMT_TOKEN).
		Token string `yaml:"token"`
		// TTL del cache de users-by-email durante la resolución de duplicados.
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"auth0"`

	WorkOS struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"workos"`

	Migrate struct {
		// Concurrency es el tope de tareas en vuelo (N del dispatcher).
		Concurrency int `yaml:"concurrency"`
		// DefaultRetryAfter: espera cuando el 429 no trae Retry-After.
		DefaultRetryAfter string `yaml:"default_retry_after"`
		// MaxRetries por registro ante rate limits. 0 = sin tope.
		MaxRetries int `yaml:"max_retries"`
		// LedgerCheck: si true, cruza --skip contra las líneas del ledger (solo warning).
		LedgerCheck bool `yaml:"ledger_check"`
	} `yaml:"migrate"`

	Rate struct {
		// Presupuesto local de requests hacia WorkOS, previo al 429 del servicio.
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
		Redis       struct {
			// Si hay Addr, la ventana se comparte entre procesos via Redis.
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"rate"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	SQLGen struct {
		Table     string `yaml:"table"`
		IDColumn  string `yaml:"id_column"`
		SetColumn string `yaml:"set_column"`
		// DSN de Postgres, solo para --apply.
		DSN string `yaml:"dsn"`
	} `yaml:"sqlgen"`
}

// Load lee el YAML (si existe), aplica defaults, overrides por env y valida.
// Un path vacío o inexistente no es error: la herramienta puede configurarse
// completa por variables de entorno (.env).
func Load(path string) (*Config, error) {
	var c Config

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// seguimos solo con env
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// Defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.WorkOS.BaseURL == "" {
		c.WorkOS.BaseURL = "https://api.workos.com"
	}
	if c.Auth0.CacheTTL == "" {
		c.Auth0.CacheTTL = "5m"
	}
	if c.Migrate.Concurrency == 0 {
		c.Migrate.Concurrency = 5
	}
	if c.Migrate.DefaultRetryAfter == "" {
		c.Migrate.DefaultRetryAfter = "10s"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "mudanza:rl:"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "localhost:9475"
	}
	if c.SQLGen.Table == "" {
		c.SQLGen.Table = "users"
	}
	if c.SQLGen.IDColumn == "" {
		c.SQLGen.IDColumn = "id"
	}
	if c.SQLGen.SetColumn == "" {
		c.SQLGen.SetColumn = "workos_user_id"
	}

	// validate string durations
	for _, d := range []string{c.Auth0.CacheTTL, c.Migrate.DefaultRetryAfter, c.Rate.Window} {
		if d != "" {
			if _, err := time.ParseDuration(d); err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", d, err)
			}
		}
	}

	// Overrides por env
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea lo mínimo que no puede faltar para cualquier subcomando.
// Las credenciales se validan en el comando que las usa (sqlgen sin --apply
// no necesita ninguna).
func (c *Config) Validate() error {
	if c.Migrate.Concurrency < 1 {
		return fmt.Errorf("migrate.concurrency must be >= 1 (got %d)", c.Migrate.Concurrency)
	}
	if c.Migrate.MaxRetries < 0 {
		return fmt.Errorf("migrate.max_retries must be >= 0 (got %d)", c.Migrate.MaxRetries)
	}
	if c.Auth0.Domain != "" && strings.Contains(c.Auth0.Domain, "://") {
		return fmt.Errorf("auth0.domain must be a bare host, not a URL: %q", c.Auth0.Domain)
	}
	return nil
}

// DefaultRetryAfter retorna la duración ya parseada (validada en Load).
func (c *Config) DefaultRetryAfter() time.Duration {
	d, _ := time.ParseDuration(c.Migrate.DefaultRetryAfter)
	return d
}

// Auth0CacheTTL retorna el TTL del cache ya parseado.
func (c *Config) Auth0CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Auth0.CacheTTL)
	return d
}

// RateWindow retorna la ventana del presupuesto local ya parseada.
func (c *Config) RateWindow() time.Duration {
	d, _ := time.ParseDuration(c.Rate.Window)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
// Las credenciales normalmente viven SOLO en env / .env.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// AUTH0
	if v, ok := getEnvStr("AUTH0_DOMAIN"); ok {
		c.Auth0.Domain = v
	}
	if v, ok := getEnvStr("AUTH0_MGMT_TOKEN"); ok {
		c.Auth0.Token = v
	}

	// WORKOS
	if v, ok := getEnvStr("WORKOS_API_KEY"); ok {
		c.WorkOS.APIKey = v
	}
	if v, ok := getEnvStr("WORKOS_BASE_URL"); ok {
		c.WorkOS.BaseURL = v
	}

	// MIGRATE
	if v, ok := getEnvInt("MIGRATE_CONCURRENCY"); ok {
		c.Migrate.Concurrency = v
	}
	if v, ok := getEnvStr("MIGRATE_DEFAULT_RETRY_AFTER"); ok {
		if _, err := time.ParseDuration(v); err == nil {
			c.Migrate.DefaultRetryAfter = v
		}
	}
	if v, ok := getEnvInt("MIGRATE_MAX_RETRIES"); ok {
		c.Migrate.MaxRetries = v
	}
	if v, ok := getEnvBool("MIGRATE_LEDGER_CHECK"); ok {
		c.Migrate.LedgerCheck = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		if _, err := time.ParseDuration(v); err == nil {
			c.Rate.Window = v
		}
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}

	// METRICS
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
	if v, ok := getEnvStr("METRICS_ADDR"); ok {
		c.Metrics.Addr = v
	}

	// SQLGEN
	if v, ok := getEnvStr("SQLGEN_DSN"); ok {
		c.SQLGen.DSN = v
	} else if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.SQLGen.DSN = v
	}
}
