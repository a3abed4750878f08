package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/flagx"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
)

// parseFlags overlays cfg with command-line flags.
//
// Supported flags (short forms):
//
//	-a string   identity provider bind address (e.g. ":8080")
//	-b string   messaging sandbox bind address (e.g. ":8081")
//	-m string   metrics bind address, empty to disable
//	-d string   PostgreSQL DSN, empty for in-memory users
//	-s string   JWT HMAC secret key
//	-i string   accepted app ID
//	-t int      identity token validity, minutes
//	-r int      session token validity, minutes
//	-l string   log level: debug, info, warn or error
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-b", "-m", "-d", "-s", "-i", "-t", "-r", "-l"})

	fs := flag.NewFlagSet("identity-provider", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.IdentityAddr, "a", cfg.IdentityAddr, "identity provider address")
	fs.StringVar(&cfg.SandboxAddr, "b", cfg.SandboxAddr, "messaging sandbox address")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics address")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	fs.StringVar(&cfg.AppID, "i", cfg.AppID, "app id")

	identityTTL := fs.Int("t", int(cfg.IdentityTokenTTL.Minutes()), "identity token validity (in minutes)")
	sessionTTL := fs.Int("r", int(cfg.SessionTokenTTL.Minutes()), "session token validity (in minutes)")
	level := fs.String("l", cfg.LogLevel.String(), "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}

	cfg.IdentityTokenTTL = time.Duration(*identityTTL) * time.Minute
	cfg.SessionTokenTTL = time.Duration(*sessionTTL) * time.Minute

	l, err := logging.ParseLevel(*level)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}
	cfg.LogLevel = l
	return nil
}
