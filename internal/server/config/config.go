// Package config handles configuration for the development back end,
// including defaults, a JSON overlay, command-line flags and environment
// variables, applied in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/atlasmessenger/internal/common"
)

// Config holds runtime settings for the identity provider and the messaging
// sandbox.
//
// Fields:
//   - IdentityAddr: bind address of the identity provider HTTP API.
//   - SandboxAddr: bind address of the messaging sandbox HTTP API.
//   - MetricsAddr: bind address of the /metrics endpoint; empty disables it.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps users in memory.
//   - SecretKey: HMAC secret for signing identity and session tokens (HS256).
//   - AppID: the only application identifier the sandbox accepts.
//   - IdentityTokenTTL / SessionTokenTTL / NonceTTL: lifetimes.
//   - RefreshWindow: how long past expiry an identity token may be refreshed.
//   - LogLevel: minimum level of emitted log records.
type Config struct {
	IdentityAddr     string        `env:"IDENTITY_ADDR"`
	SandboxAddr      string        `env:"SANDBOX_ADDR"`
	MetricsAddr      string        `env:"METRICS_ADDR"`
	DatabaseDSN      string        `env:"DATABASE_DSN"`
	SecretKey        string        `env:"SECRET_KEY"`
	AppID            string        `env:"APP_ID"`
	IdentityTokenTTL time.Duration `env:"IDENTITY_TOKEN_TTL"`
	SessionTokenTTL  time.Duration `env:"SESSION_TOKEN_TTL"`
	NonceTTL         time.Duration `env:"NONCE_TTL"`
	RefreshWindow    time.Duration `env:"REFRESH_WINDOW"`
	LogLevel         slog.Level    `env:"LOG_LEVEL"`
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ATLAS_"

// LoadDefaults populates Config with development defaults.
// NOTE: the secret is insecure and must be overridden outside development.
func (c *Config) LoadDefaults() {
	c.IdentityAddr = ":8080"
	c.SandboxAddr = ":8081"
	c.MetricsAddr = ":9090"
	c.SecretKey = "secretKey"
	c.AppID = "layer:///apps/staging/dev"
	c.IdentityTokenTTL = 10 * time.Minute
	c.SessionTokenTTL = time.Hour
	c.NonceTTL = 5 * time.Minute
	c.RefreshWindow = 24 * time.Hour
	c.LogLevel = slog.LevelInfo
}

// LoadConfig builds a Config from defaults, the optional JSON file named by
// -c/-config, command-line flags and ATLAS_* environment variables.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:], os.Environ())
}

func loadConfig(args, environ []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, environ); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEnv(cfg *Config, environ []string) error {
	err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.SecretKey == "":
		return fmt.Errorf("%w: secret key is empty", common.ErrConfiguration)
	case c.AppID == "":
		return fmt.Errorf("%w: app id is empty", common.ErrConfiguration)
	case c.IdentityTokenTTL <= 0, c.SessionTokenTTL <= 0, c.NonceTTL <= 0:
		return fmt.Errorf("%w: token lifetimes must be positive", common.ErrConfiguration)
	case c.RefreshWindow < 0:
		return fmt.Errorf("%w: refresh window is negative", common.ErrConfiguration)
	}
	return nil
}
