package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/flagx"
)

// parseFlags overlays cfg with command-line flags.
//
// Supported flags (short forms):
//
//	-m string   messaging platform base URL
//	-p string   persistence mode: file, sqlite or memory
//	-d string   data directory for the persisted session
//	-t int      HTTP timeout in seconds
//
// Arguments that belong to other components (for example -c) are filtered
// out with flagx.FilterArgs before parsing.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-m", "-p", "-d", "-t"})

	fs := flag.NewFlagSet("messenger", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.MessagingEndpoint, "m", cfg.MessagingEndpoint, "messaging platform base URL")
	fs.StringVar(&cfg.PersistenceMode, "p", cfg.PersistenceMode, "persistence mode (file, sqlite, memory)")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	timeout := fs.Int("t", int(cfg.HTTPTimeout.Seconds()), "HTTP timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}

	switch cfg.PersistenceMode {
	case PersistenceFile, PersistenceSQLite, PersistenceMemory:
	default:
		return fmt.Errorf("%w: unknown persistence mode %q", common.ErrConfiguration, cfg.PersistenceMode)
	}
	if *timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", common.ErrConfiguration)
	}

	cfg.HTTPTimeout = time.Duration(*timeout) * time.Second
	return nil
}
