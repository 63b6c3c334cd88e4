// Package config loads client settings and persists update-check state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/update"
)

// EnvPrefix prefixes environment overrides, e.g. CATALOG_FREQUENCY.
const EnvPrefix = "CATALOG"

// Config holds the client settings.
type Config struct {
	Frequency string   `mapstructure:"frequency"`
	Action    string   `mapstructure:"action"`
	UpdateAll bool     `mapstructure:"update_all"`
	Catalogs  []string `mapstructure:"catalogs"` // primary first
	CacheDir  string   `mapstructure:"cache_dir"`
	PluginDir string   `mapstructure:"plugin_dir"`
	StateFile string   `mapstructure:"state_file"`
	HostBuild int      `mapstructure:"host_build"`
	Locale    string   `mapstructure:"locale"`
	LogLevel  string   `mapstructure:"log_level"`
	LogPretty bool     `mapstructure:"log_pretty"`
}

func setDefaults(v *viper.Viper) {
	cacheBase, err := os.UserCacheDir()
	if err != nil {
		cacheBase = os.TempDir()
	}
	configBase, err := os.UserConfigDir()
	if err != nil {
		configBase = "."
	}

	v.SetDefault("frequency", update.Weekly.String())
	v.SetDefault("action", update.Notify.String())
	v.SetDefault("update_all", false)
	v.SetDefault("catalogs", []string{})
	v.SetDefault("cache_dir", filepath.Join(cacheBase, "catalog"))
	v.SetDefault("plugin_dir", filepath.Join(configBase, "catalog", "plugins"))
	v.SetDefault("state_file", filepath.Join(configBase, "catalog", "state.yaml"))
	v.SetDefault("host_build", 0)
	v.SetDefault("locale", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
}

// Load reads settings from path (optional), then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings and catalog URLs.
func (c *Config) Validate() error {
	var errs []error
	if _, err := update.ParseFrequency(c.Frequency); err != nil {
		errs = append(errs, err)
	}
	if _, err := update.ParseAction(c.Action); err != nil {
		errs = append(errs, err)
	}
	for _, u := range c.Catalogs {
		if _, err := fetch.CatalogURL(u); err != nil {
			errs = append(errs, err)
		}
	}
	if c.HostBuild < 0 {
		errs = append(errs, fmt.Errorf("host_build must not be negative, got %d", c.HostBuild))
	}
	return errors.Join(errs...)
}

// UpdateFrequency returns the parsed check frequency.
func (c *Config) UpdateFrequency() update.Frequency {
	f, _ := update.ParseFrequency(c.Frequency)
	return f
}

// UpdateAction returns the parsed post-check action.
func (c *Config) UpdateAction() update.Action {
	a, _ := update.ParseAction(c.Action)
	return a
}

// Primary returns the primary catalog URL, or "".
func (c *Config) Primary() string {
	if len(c.Catalogs) == 0 {
		return ""
	}
	return c.Catalogs[0]
}

// CachePath is the snapshot file of the primary catalog.
func (c *Config) CachePath() string {
	return filepath.Join(c.CacheDir, "catalog-cache.txt")
}
