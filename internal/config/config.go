// Package config provides the gateway's configuration loader: a YAML file
// merged with GLYPH_* environment variable overrides via viper.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"glyph/internal/utils"
)

// Config is the unified gateway configuration.
type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr" json:"addr"`
	} `mapstructure:"http" json:"http"`

	Identity struct {
		KeyPath string `mapstructure:"key_path" json:"key_path"`
	} `mapstructure:"identity" json:"identity"`

	Ledger struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"ledger" json:"ledger"`

	Peers []string `mapstructure:"peers" json:"peers"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`

	MinterURL string `mapstructure:"minter_url" json:"minter_url"`
}

// Default returns a Config populated with the gateway's built-in defaults,
// before any file or environment overlay is applied.
func Default() Config {
	var c Config
	c.HTTP.Addr = ":8080"
	c.Identity.KeyPath = "gateway.key"
	c.Ledger.DBPath = "glyph.db"
	c.Logging.Level = "info"
	return c
}

// Load reads an optional YAML config file at path (skipped silently if
// absent) and applies GLYPH_-prefixed environment variable overrides on
// top, e.g. GLYPH_HTTP_ADDR overrides http.addr.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("glyph")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("identity.key_path", cfg.Identity.KeyPath)
	v.SetDefault("ledger.db_path", cfg.Ledger.DBPath)
	v.SetDefault("logging.level", cfg.Logging.Level)
	// Registering a default makes AutomaticEnv pick up GLYPH_MINTER_URL even
	// when no config file sets the key.
	v.SetDefault("minter_url", cfg.MinterURL)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, utils.Wrap(err, "read config file "+path)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// MinterPrivateKeyEnv and GatewayURLEnv are the environment variables
// consumed by the client, minter, and configure-token commands.
const (
	MinterPrivateKeyEnv = "GLYPH_MINTER_PRIVATE_KEY"
	GatewayURLEnv       = "GLYPH_GATEWAY_URL"
)
