package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/flagx"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
	"github.com/dmitrijs2005/atlasmessenger/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations accept both strings
// such as "10m" and integer nanoseconds. Absent fields keep their previous
// value.
type JsonConfig struct {
	IdentityAddr     *string         `json:"identity_addr"`
	SandboxAddr      *string         `json:"sandbox_addr"`
	MetricsAddr      *string         `json:"metrics_addr"`
	DatabaseDSN      *string         `json:"database_dsn"`
	SecretKey        *string         `json:"secret_key"`
	AppID            *string         `json:"app_id"`
	IdentityTokenTTL *timex.Duration `json:"identity_token_ttl"`
	SessionTokenTTL  *timex.Duration `json:"session_token_ttl"`
	NonceTTL         *timex.Duration `json:"nonce_ttl"`
	RefreshWindow    *timex.Duration `json:"refresh_window"`
	LogLevel         *string         `json:"log_level"`
}

// parseJSON loads the file named by -c/-config, if any, into cfg.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args, "")
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}

	setString(&cfg.IdentityAddr, c.IdentityAddr)
	setString(&cfg.SandboxAddr, c.SandboxAddr)
	setString(&cfg.MetricsAddr, c.MetricsAddr)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setString(&cfg.AppID, c.AppID)
	setDuration(&cfg.IdentityTokenTTL, c.IdentityTokenTTL)
	setDuration(&cfg.SessionTokenTTL, c.SessionTokenTTL)
	setDuration(&cfg.NonceTTL, c.NonceTTL)
	setDuration(&cfg.RefreshWindow, c.RefreshWindow)

	if c.LogLevel != nil {
		l, err := logging.ParseLevel(*c.LogLevel)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
		}
		cfg.LogLevel = l
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
