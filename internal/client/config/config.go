package config

import (
	"os"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/persistence"
	"github.com/dmitrijs2005/atlasmessenger/internal/flagx"
)

// DefaultConfigPath is where the configuration resource is looked up when no
// -c/-config flag is given.
const DefaultConfigPath = "LayerConfiguration.json"

// Persistence modes understood by persistence.New.
const (
	PersistenceFile   = persistence.ModeFile
	PersistenceSQLite = persistence.ModeSQLite
	PersistenceMemory = persistence.ModeMemory
)

// Config holds runtime settings for the messenger client.
//
// Fields:
//   - AppID, IdentityProviderURL: loaded from the configuration resource.
//   - MessagingEndpoint: base URL of the messaging platform REST API.
//   - PersistenceMode: one of PersistenceFile, PersistenceSQLite, PersistenceMemory.
//   - DataDir: directory holding the persisted session.
//   - HTTPTimeout: bound on every identity provider and messaging call.
type Config struct {
	AppID               string
	IdentityProviderURL string
	MessagingEndpoint   string
	PersistenceMode     string
	DataDir             string
	HTTPTimeout         time.Duration
}

// LoadDefaults populates c with defaults for everything the configuration
// resource does not provide.
func (c *Config) LoadDefaults() {
	c.MessagingEndpoint = "http://127.0.0.1:8081"
	c.PersistenceMode = PersistenceFile
	c.DataDir = ".atlas"
	c.HTTPTimeout = 15 * time.Second
}

// LoadConfig constructs a Config from defaults, the configuration resource
// and command-line flags, in that order. A missing or malformed resource is
// a startup error wrapping common.ErrConfiguration.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	res, err := LoadResource(flagx.ConfigPath(args, DefaultConfigPath))
	if err != nil {
		return nil, err
	}
	cfg.AppID = res.AppID
	cfg.IdentityProviderURL = res.IdentityProviderURL

	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
